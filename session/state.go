// Package session implements the stateless-per-request MQTT session
// handler: given a decoded packet and the session state restored from the
// previous request's Set-Meta-State header, it produces outbound packets
// and a mutated state to persist for the next request.
package session

import "github.com/fastly/pubsub/retained"

// versionJSON is retained.Version's wire shape inside State; short field
// names since State round-trips through a request header on every call.
type versionJSON struct {
	G uint64 `json:"g"`
	S uint64 `json:"s"`
}

func toVersionJSON(v retained.Version) versionJSON { return versionJSON{G: v.Generation, S: v.Seq} }
func (v versionJSON) toVersion() retained.Version {
	return retained.Version{Generation: v.G, Seq: v.S}
}

// Subscription is one topic's subscription state, carried in State.Subs.
type Subscription struct {
	NoLocal           bool          `json:"nl,omitempty"`
	RetainAsPublished bool          `json:"rap,omitempty"`
	Last              *versionJSON  `json:"v,omitempty"`
	Ignore            []versionJSON `json:"ig,omitempty"`
}

// LastVersion returns the subscription's last-delivered version, or false
// if none has been recorded yet.
func (s Subscription) LastVersion() (retained.Version, bool) {
	if s.Last == nil {
		return retained.Version{}, false
	}
	return s.Last.toVersion(), true
}

func (s *Subscription) setLastVersion(v retained.Version) {
	vj := toVersionJSON(v)
	s.Last = &vj
}

// ignores reports whether the subscription's ignore list records v, a
// version produced by this same client's own publish that should not be
// re-delivered to it by the sync pass. Nothing populates Ignore yet; the
// field is carried so states written by a future publisher stay
// readable.
func (s Subscription) ignores(v retained.Version) bool {
	for _, ig := range s.Ignore {
		if ig.toVersion() == v {
			return true
		}
	}
	return false
}

// State is the MQTT session, serialized to JSON for the Set-Meta-State
// response header and restored from Meta-State on the next request.
// Field names are kept short because this value round-trips on every
// MQTT call.
type State struct {
	Connected bool                    `json:"c,omitempty"`
	ClientID  string                  `json:"id,omitempty"`
	Token     string                  `json:"tok,omitempty"`
	Subs      map[string]Subscription `json:"s,omitempty"`
}

// clear resets the state to its zero value in place, as DISCONNECT does.
func (st *State) clear() {
	st.Connected = false
	st.ClientID = ""
	st.Token = ""
	st.Subs = nil
}
