// Package retained implements the CAS-versioned retained-message slot: one
// payload per topic, identified by a (generation, seq) version pair that
// survives a TTL-expiry-then-rewrite cycle via a linger window.
package retained

import (
	"fmt"
	"strconv"
	"strings"
)

// Version identifies a retained slot's incarnation (generation, assigned
// once at slot creation) and its monotonically increasing revision (seq).
type Version struct {
	Generation uint64
	Seq        uint64
}

// NoneID is the distinguished textual value denoting the absence of a
// version, used as a Grip-Channel prev-id, as a publish Sequencing
// prev id, and in Last-Event-ID / Grip-Last resume ids.
const NoneID = "none"

// AsID renders the canonical textual id: zero-padded 16-hex generation,
// a dash, and the decimal seq.
func (v Version) AsID() string {
	return fmt.Sprintf("%016x-%d", v.Generation, v.Seq)
}

// ParseID parses the canonical textual id, or the NoneID sentinel, back
// into a Version. ok is false (with a zero Version) for NoneID.
func ParseID(id string) (v Version, ok bool, err error) {
	if id == NoneID {
		return Version{}, false, nil
	}
	dash := strings.IndexByte(id, '-')
	if dash < 0 {
		return Version{}, false, fmt.Errorf("retained: malformed version id %q", id)
	}
	gen, err := strconv.ParseUint(id[:dash], 16, 64)
	if err != nil {
		return Version{}, false, fmt.Errorf("retained: malformed generation in %q: %w", id, err)
	}
	seq, err := strconv.ParseUint(id[dash+1:], 10, 64)
	if err != nil {
		return Version{}, false, fmt.Errorf("retained: malformed seq in %q: %w", id, err)
	}
	return Version{Generation: gen, Seq: seq}, true, nil
}

// Less reports whether v sorts strictly before o in (generation, seq)
// lexicographic order.
func (v Version) Less(o Version) bool {
	if v.Generation != o.Generation {
		return v.Generation < o.Generation
	}
	return v.Seq < o.Seq
}
