// Command proxysim is a local stand-in for the fronting proxy: it
// terminates real MQTT-over-WebSocket connections and replays every frame
// to a running gateway as discrete POST /mqtt calls using the WS-HTTP
// envelope, carrying session state and unaccepted bytes between calls the
// same way the production proxy does. It exists for manual smoke tests
// and local development; it is not a production component.
//
// On startup it mints an ephemeral ES256 keypair for signing Grip-Sig and
// prints the public half as PEM, ready to paste into the gateway's
// gripPublicKeyPem config field.
package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fastly/pubsub/wsevents"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	xwebsocket "golang.org/x/net/websocket"
)

var (
	listen    = flag.String("listen", "127.0.0.1:7999", "address to accept MQTT-over-WebSocket connections on")
	gateway   = flag.String("gateway", "http://127.0.0.1:8080", "base URL of the gateway to replay frames to")
	serviceID = flag.String("service-id", "local", "service id to embed in the Grip-Sig issuer")
	smoke     = flag.Bool("smoke", false, "dial a running proxysim and exchange CONNECT/CONNACK, then exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *smoke {
		if err := runSmoke("ws://" + *listen + "/mqtt"); err != nil {
			log.Fatal(err)
		}
		return
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatal(err)
	}
	_ = pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: der})

	sim := &sim{gateway: *gateway, serviceID: *serviceID, signingKey: key}
	http.HandleFunc("/mqtt", sim.handleWS)
	log.Printf("proxysim: listening on %s, replaying to %s", *listen, *gateway)
	log.Fatal(http.ListenAndServe(*listen, nil))
}

type sim struct {
	gateway    string
	serviceID  string
	signingKey *ecdsa.PrivateKey
}

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{"mqtt"},
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// connState is what the production proxy keeps per long-lived connection:
// an id, the gateway's opaque state header, and any content bytes the
// gateway has not yet accepted.
type connState struct {
	cid       string
	metaState string
	replay    []byte
}

func (s *sim) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("proxysim: upgrade: %v", err)
		return
	}
	defer ws.Close()

	cs := &connState{cid: uuid.NewString()}
	log.Printf("proxysim: %s connected from %s", cs.cid, ws.RemoteAddr())

	// The opening call carries an OPEN event and no content.
	if closed := s.roundTrip(ws, cs, []wsevents.Event{{Type: wsevents.TypeOpen}}, true); closed {
		return
	}

	for {
		mt, frame, err := ws.ReadMessage()
		if err != nil {
			// Client went away: replay a CLOSE so the gateway clears state.
			s.roundTrip(ws, cs, []wsevents.Event{{Type: wsevents.TypeClose}}, false)
			return
		}
		etype := wsevents.TypeBinary
		if mt == websocket.TextMessage {
			etype = wsevents.TypeText
		}
		if closed := s.roundTrip(ws, cs, []wsevents.Event{{Type: etype, Content: frame}}, false); closed {
			return
		}
	}
}

// roundTrip replays events to the gateway as one POST /mqtt call and
// forwards any returned MQTT frames to the client. It reports whether the
// gateway asked for the connection to close.
func (s *sim) roundTrip(ws *websocket.Conn, cs *connState, events []wsevents.Event, opening bool) (closed bool) {
	// Unaccepted bytes from the previous call are replayed at the front
	// of this call's first content event.
	replayed := len(cs.replay)
	var content, body []byte
	prepended := false
	for _, ev := range events {
		if ev.Type == wsevents.TypeBinary || ev.Type == wsevents.TypeText {
			if !prepended && replayed > 0 {
				ev.Content = append(append([]byte(nil), cs.replay...), ev.Content...)
				prepended = true
			}
			content = append(content, ev.Content...)
		}
		body = append(body, ev.Encode()...)
	}

	req, err := http.NewRequest(http.MethodPost, s.gateway+"/mqtt", bytes.NewReader(body))
	if err != nil {
		log.Printf("proxysim: %s building request: %v", cs.cid, err)
		return true
	}
	req.Header.Set("Content-Type", "application/websocket-events")
	req.Header.Set("Connection-Id", cs.cid)
	req.Header.Set("Grip-Sig", s.gripSig())
	req.Header.Set("Content-Bytes-Replayed", strconv.Itoa(replayed))
	if opening {
		req.Header.Set("Sec-WebSocket-Extensions", "grip")
		req.Header.Set("Sec-WebSocket-Protocol", "mqtt")
	}
	if cs.metaState != "" {
		req.Header.Set("Meta-State", cs.metaState)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("proxysim: %s gateway call: %v", cs.cid, err)
		return true
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("proxysim: %s reading gateway response: %v", cs.cid, err)
		return true
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("proxysim: %s gateway returned %d: %s", cs.cid, resp.StatusCode, respBody)
		return true
	}

	if v := resp.Header.Get("Set-Meta-State"); v != "" {
		cs.metaState = v
	}
	accepted, _ := strconv.Atoi(resp.Header.Get("Content-Bytes-Accepted"))
	if accepted <= len(content) {
		cs.replay = append([]byte(nil), content[accepted:]...)
	} else {
		cs.replay = nil
	}

	outEvents, err := wsevents.ParseAll(respBody)
	if err != nil {
		log.Printf("proxysim: %s parsing gateway response: %v", cs.cid, err)
		return true
	}
	for _, ev := range outEvents {
		switch ev.Type {
		case wsevents.TypeClose:
			log.Printf("proxysim: %s gateway closed the connection", cs.cid)
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true
		case wsevents.TypeBinary:
			if len(ev.Content) > 2 && string(ev.Content[:2]) == "m:" {
				_ = ws.WriteMessage(websocket.BinaryMessage, ev.Content[2:])
			}
		case wsevents.TypeText:
			log.Printf("proxysim: %s control %s", cs.cid, ev.Content)
		}
	}
	return false
}

// gripSig signs a short-lived ES256 token the way the production proxy
// stamps Grip-Sig on every forwarded request.
func (s *sim) gripSig() string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    "fastly:" + s.serviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Printf("proxysim: signing grip-sig: %v", err)
		return ""
	}
	return signed
}

// runSmoke dials a running proxysim as a real MQTT-over-WebSocket client
// and exchanges a minimal v5 CONNECT for a CONNACK.
func runSmoke(wsURL string) error {
	cfg, err := xwebsocket.NewConfig(wsURL, "http://localhost/")
	if err != nil {
		return err
	}
	cfg.Protocol = []string{"mqtt"}
	ws, err := xwebsocket.DialConfig(cfg)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer ws.Close()
	ws.PayloadType = xwebsocket.BinaryFrame

	// Minimal MQTT v5 CONNECT: clean start, no will, no credentials,
	// client id "proxysim-smoke".
	clientID := "proxysim-smoke"
	var body []byte
	body = append(body, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x05, 0x02, 0x00, 0x3c, 0x00)
	body = append(body, 0x00, byte(len(clientID)))
	body = append(body, clientID...)
	frame := append([]byte{0x10, byte(len(body))}, body...)

	if _, err := ws.Write(frame); err != nil {
		return err
	}
	reply := make([]byte, 512)
	n, err := ws.Read(reply)
	if err != nil {
		return err
	}
	if n < 1 || reply[0]>>4 != 0x2 {
		return fmt.Errorf("expected CONNACK, got % x", reply[:n])
	}
	log.Printf("proxysim smoke: CONNACK % x", reply[:n])
	return nil
}
