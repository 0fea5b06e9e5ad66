package retained

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fastly/pubsub/internal/metrics"
	"github.com/fastly/pubsub/retained/storage"
)

// ErrTooManyRequests is returned when the CAS write loop exhausts its
// retry budget without landing a write.
var ErrTooManyRequests = errors.New("retained: too many requests")

// Store is the retained-message slot: one logical key per topic, CAS
// versioned, with TTL+linger semantics layered over a storage.Driver.
type Store struct {
	driver  storage.Driver
	Metrics *metrics.Stat // optional; nil disables instrumentation
}

// New wraps a storage.Driver as a retained Store.
func New(driver storage.Driver) *Store {
	return &Store{driver: driver}
}

func key(topic string) string { return "r:" + topic }

// Read loads the current slot for topic. If after is non-nil, has the
// stored slot's generation, and has a seq at or above the stored seq,
// Read returns (nil, nil): there is nothing new to report. A slot of any
// other generation is always returned. If the payload's TTL has
// elapsed but the slot is still within its linger window, the returned
// Slot has a nil Message.
func (s *Store) Read(ctx context.Context, topic string, after *Version) (*Slot, error) {
	item, err := s.driver.Get(ctx, key(topic))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	v := Version{Generation: item.Generation, Seq: item.Seq}
	if after != nil && item.Generation == after.Generation && item.Seq <= after.Seq {
		return nil, nil
	}

	if item.ExpiresAt == nil {
		return &Slot{Version: v, Message: &Message{Data: item.Value}}, nil
	}
	ttl := time.Until(*item.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	if ttl == 0 {
		return &Slot{Version: v}, nil
	}
	return &Slot{Version: v, Message: &Message{Data: item.Value, TTL: &ttl}}, nil
}

// Write performs the retained-slot CAS loop: bump seq on an existing
// slot, or mint a fresh generation for an absent one, making at most 5
// attempts in all when writes hit a generation conflict before giving up.
func (s *Store) Write(ctx context.Context, topic string, payload []byte, ttl *time.Duration) (Version, error) {
	k := key(topic)
	for try := 0; try < writeTriesMax; try++ {
		if try > 0 && s.Metrics != nil {
			s.Metrics.RetainedCASRetries.Inc()
		}
		current, err := s.driver.Get(ctx, k)
		if err != nil {
			return Version{}, err
		}

		var gen, seq uint64
		createOnly := current == nil
		if createOnly {
			gen, err = randomUint64()
			if err != nil {
				return Version{}, err
			}
			seq = 1
		} else {
			gen = current.Generation
			seq = current.Seq + 1
		}

		var expiresAt *time.Time
		if ttl != nil {
			t := time.Now().Add(*ttl)
			expiresAt = &t
		}
		objectTTL := LINGER
		if ttl != nil {
			objectTTL = *ttl + LINGER
		}

		item := storage.Item{
			Value:      payload,
			Generation: gen,
			Seq:        seq,
			ExpiresAt:  expiresAt,
		}
		var expectedGeneration uint64
		if !createOnly {
			expectedGeneration = current.Generation
		}

		err = s.driver.Put(ctx, k, item, objectTTL, expectedGeneration, createOnly)
		if err == nil {
			if s.Metrics != nil {
				s.Metrics.RetainedWrites.Inc()
			}
			return Version{Generation: gen, Seq: seq}, nil
		}
		if errors.Is(err, storage.ErrConflict) {
			if s.Metrics != nil {
				s.Metrics.RetainedCASConflicts.Inc()
			}
			continue
		}
		return Version{}, err
	}
	log.Printf("retained: write_retained(%q): exhausted %d CAS attempts", topic, writeTriesMax)
	return Version{}, ErrTooManyRequests
}

func randomUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("retained: generating generation: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
