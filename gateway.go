// Package pubsub wires the broker engine (packet codec, envelope codec,
// retained storage, session handler, SSE handler, publish fan-out) into
// the gateway's HTTP surface: routing, CORS, the SSE and HTTP-publish
// endpoints, and the MQTT transport binding.
package pubsub

import (
	"crypto/ecdsa"

	"github.com/fastly/pubsub/auth"
	"github.com/fastly/pubsub/config"
	"github.com/fastly/pubsub/internal/metrics"
	"github.com/fastly/pubsub/publish"
	"github.com/fastly/pubsub/retained"
	"github.com/fastly/pubsub/retained/storage"
	"github.com/fastly/pubsub/session"
	"github.com/fastly/pubsub/sse"
)

// Gateway holds every collaborator a request handler needs, built once at
// startup from a loaded config.Config.
type Gateway struct {
	Config Config

	Authorizer  auth.Authorizer
	Keys        auth.KeyWriter
	Storage     *retained.Store
	Publisher   *publish.HTTPClient
	Metrics     *metrics.Stat
	Session     *session.Handler
	SSE         sse.Deps
	GripPublic  *ecdsa.PublicKey
	closeDriver func() error
}

// Config is the loaded config.Config a running Gateway keeps after
// load-time decisions (e.g. which storage driver) have been resolved.
type Config = config.Config

// New builds a Gateway from a loaded Config. The caller is responsible
// for calling Close when done (releases the storage driver).
func New(cfg config.Config) (*Gateway, error) {
	stat := metrics.New()

	driver, closeDriver, err := openStorageDriver(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store := retained.New(driver)
	store.Metrics = stat

	keys := openKeyWriter(driver)
	authorizer := auth.KVStoreAuthorizer{Keys: keys}

	var internalKey []byte
	if cfg.InternalKeyHex != "" {
		internalKey, err = decodeHexKey(cfg.InternalKeyHex)
		if err != nil {
			return nil, err
		}
	}

	endpoints := make([]publish.Endpoint, len(cfg.Endpoints))
	for i, e := range cfg.Endpoints {
		endpoints[i] = publish.Endpoint{URL: e.URL, Token: e.Token}
	}
	publisher := publish.NewHTTPClient(endpoints)
	publisher.Metrics = stat

	var gripPublic *ecdsa.PublicKey
	if cfg.GripPublicKeyPEM != "" {
		gripPublic, err = parseECDSAPublicKeyPEM(cfg.GripPublicKeyPEM)
		if err != nil {
			return nil, err
		}
	}

	sessionHandler := &session.Handler{
		Authorizer:  authorizer,
		InternalKey: internalKey,
		Storage:     store,
		Publisher:   publisher,
		Metrics:     stat,
	}

	g := &Gateway{
		Config:      cfg,
		Authorizer:  authorizer,
		Keys:        keys,
		Storage:     store,
		Publisher:   publisher,
		Metrics:     stat,
		Session:     sessionHandler,
		GripPublic:  gripPublic,
		closeDriver: closeDriver,
		SSE: sse.Deps{
			Authorizer:  authorizer,
			InternalKey: internalKey,
			Storage:     store,
			AdminKey:    cfg.AdminKey,
			Metrics:     stat,
		},
	}
	return g, nil
}

// Close releases the storage driver.
func (g *Gateway) Close() error {
	if g.closeDriver != nil {
		return g.closeDriver()
	}
	return nil
}

// openKeyWriter shares the badger handle with the key store when the
// retained driver is badger-backed, so a single on-disk database holds
// both retained slots and signing keys; the in-memory driver has no
// handle to share, so it gets its own map-backed store.
func openKeyWriter(driver storage.Driver) auth.KeyWriter {
	if b, ok := driver.(*storage.Badger); ok {
		return auth.NewBadgerKeyStore(b.DB())
	}
	return auth.NewMapKeyStore()
}

func openStorageDriver(cfg config.Storage) (storage.Driver, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		d := storage.NewMemory()
		return d, d.Close, nil
	case "badger":
		d, err := storage.NewBadger(storage.BadgerOptions{Dir: cfg.Dir, InMemory: cfg.InMemory})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	default:
		return nil, nil, errUnknownStorageDriver(cfg.Driver)
	}
}
