// Package auth resolves Capabilities from a bearer JWT or from proxy/admin
// trust, and validates the fronting proxy's Grip-Sig signature.
package auth

// Capabilities is what a request is allowed to do: admin bypasses the
// read/write sets entirely.
type Capabilities struct {
	Admin bool
	Read  map[string]bool
	Write map[string]bool
}

// AdminCapabilities grants every topic, used for requests authenticated as
// the fronting proxy (valid Grip-Sig) or the control plane (valid
// Fastly-Key).
func AdminCapabilities() Capabilities {
	return Capabilities{Admin: true}
}

func (c Capabilities) CanSubscribe(topic string) bool {
	if c.Admin {
		return true
	}
	return c.Read[topic]
}

func (c Capabilities) CanPublish(topic string) bool {
	if c.Admin {
		return true
	}
	return c.Write[topic]
}
