// Package config loads the gateway's runtime configuration: one YAML
// section per external collaborator (listen address, signing keys,
// storage driver, publish endpoints), behind a Source interface with
// production and test implementations.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Listen is one HTTP listen address plus its optional TLS material.
type Listen struct {
	URL      string `yaml:"url"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Endpoint is one outbound publish-fan-out target.
type Endpoint struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Storage selects and configures the retained-message storage driver.
type Storage struct {
	Driver   string `yaml:"driver"` // "memory" or "badger"
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"inMemory"`
}

// Config is everything the gateway's external collaborators need:
// the listen address, whether each surface is enabled, the signing-key
// material, and the storage/publish backends.
type Config struct {
	HTTP Listen `yaml:"http"`

	SSEEnabled         bool `yaml:"sseEnabled"`
	HTTPPublishEnabled bool `yaml:"httpPublishEnabled"`
	MQTTEnabled        bool `yaml:"mqttEnabled"`
	AdminEnabled       bool `yaml:"adminEnabled"`

	// AdminKey is matched against the Fastly-Key header for control-plane
	// calls (admin key minting, and the admin-override auth path).
	AdminKey string `yaml:"adminKey"`

	// ServiceID and GripPublicKeyPEM validate the fronting proxy's
	// Grip-Sig header (ES256, issuer "fastly:<serviceID>").
	ServiceID        string `yaml:"serviceId"`
	GripPublicKeyPEM string `yaml:"gripPublicKeyPem"`

	// InternalKeyHex is the HMAC key bound to JWT kid "internal".
	InternalKeyHex string `yaml:"internalKeyHex"`

	Storage   Storage    `yaml:"storage"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// DefaultConfig is the no-file default: every surface on, no secrets
// configured. A config file only needs to set what it wants to change
// from this.
func DefaultConfig() Config {
	return Config{
		HTTP:               Listen{URL: "0.0.0.0:8080"},
		SSEEnabled:         true,
		HTTPPublishEnabled: true,
		MQTTEnabled:        true,
		AdminEnabled:       true,
		Storage:            Storage{Driver: "memory"},
	}
}

// Source loads a Config from wherever this deployment keeps it.
// Production reads a YAML file, tests use a fixed in-memory value.
type Source interface {
	Config() (Config, error)
}

// FileSource loads Config from a YAML file on disk, falling back to
// DefaultConfig for any field the file doesn't set.
type FileSource struct {
	Path string
}

func (s FileSource) Config() (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", s.Path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", s.Path, err)
	}
	return cfg, nil
}

// StaticSource returns a fixed Config, used by tests in place of
// FileSource.
type StaticSource struct {
	Value Config
}

func (s StaticSource) Config() (Config, error) { return s.Value, nil }
