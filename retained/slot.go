package retained

import "time"

// LINGER is the additional object lifetime granted after a retained
// payload's TTL expires, so a subsequent write can continue the same
// (generation, seq) series instead of starting a fresh generation.
const LINGER = 86400 * time.Second

// writeTriesMax bounds the CAS retry loop.
const writeTriesMax = 5

// Message is a retained payload plus its remaining time-to-live. A nil
// *Message on a Slot with a non-zero Version means the slot is in its
// linger window: metadata survives but the payload has expired.
type Message struct {
	Data []byte
	TTL  *time.Duration
}

// Slot is what Read returns: the current version, and the message if one
// is still live (not linger-expired).
type Slot struct {
	Version Version
	Message *Message
}
