package packet

import "errors"

// Sentinel errors returned by Parse and the Pack methods.
var (
	// ErrMalformed is returned when bytes are present but do not form a
	// valid packet (bad UTF-8, bad flags, unknown property id, ...).
	ErrMalformed = errors.New("packet: malformed packet")

	// ErrPacketTooLarge is returned when a variable byte integer would
	// need a fifth continuation byte, or the remaining length exceeds
	// the four-byte variable byte integer range.
	ErrPacketTooLarge = errors.New("packet: packet too large")

	// errIncomplete is returned internally by the low-level readers when
	// the buffer does not yet hold a full field. Parse translates it
	// into the (nil, 0, nil) "need more bytes" result; it never escapes
	// the package.
	errIncomplete = errors.New("packet: incomplete")
)

// ReasonCode is a one-byte MQTT v5 reason/return code carried by CONNACK,
// SUBACK, UNSUBACK and DISCONNECT.
type ReasonCode byte

const (
	Success                           ReasonCode = 0x00
	NoSubscriptionExisted             ReasonCode = 0x11
	UnspecifiedError                  ReasonCode = 0x80
	ProtocolError                     ReasonCode = 0x82
	UnsupportedProtocolVersion        ReasonCode = 0x84
	NotAuthorized                     ReasonCode = 0x87
	QoSNotSupported                   ReasonCode = 0x9b
	WildcardSubscriptionsNotSupported ReasonCode = 0xa2
)
