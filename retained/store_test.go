package retained

import (
	"context"
	"testing"
	"time"

	"github.com/fastly/pubsub/retained/storage"
)

func TestWriteReadCAS(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory())

	v1, err := s.Write(ctx, "t", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if v1.Seq != 1 {
		t.Fatalf("v1 = %+v, want seq 1", v1)
	}

	ttl := 60 * time.Second
	v2, err := s.Write(ctx, "t", []byte("world"), &ttl)
	if err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if v2.Generation != v1.Generation || v2.Seq != 2 {
		t.Fatalf("v2 = %+v, want same generation as v1 and seq 2", v2)
	}

	slot, err := s.Read(ctx, "t", nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if slot == nil || slot.Version != v2 || slot.Message == nil || string(slot.Message.Data) != "world" {
		t.Fatalf("Read() = %+v, want version %+v payload \"world\"", slot, v2)
	}
	if slot.Message.TTL == nil || *slot.Message.TTL > 60*time.Second {
		t.Fatalf("Read() TTL = %v, want <= 60s", slot.Message.TTL)
	}

	slot, err = s.Read(ctx, "t", &v2)
	if err != nil {
		t.Fatalf("Read with after=v2: %v", err)
	}
	if slot != nil {
		t.Fatalf("Read with after=v2 = %+v, want nil", slot)
	}

	driver := s.driver.(*storage.Memory)
	if err := driver.Delete(ctx, key("t")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	v3, err := s.Write(ctx, "t", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Write 3: %v", err)
	}
	if v3.Generation == v1.Generation {
		t.Fatalf("v3.Generation = v1.Generation (%x), want a fresh generation", v1.Generation)
	}
	if v3.Seq != 1 {
		t.Fatalf("v3.Seq = %d, want 1", v3.Seq)
	}
}

func TestVersionIDRoundTrip(t *testing.T) {
	v := Version{Generation: 0x1234, Seq: 7}
	id := v.AsID()
	got, ok, err := ParseID(id)
	if err != nil || !ok {
		t.Fatalf("ParseID(%q) = (%+v, %v, %v)", id, got, ok, err)
	}
	if got != v {
		t.Fatalf("ParseID(AsID(%+v)) = %+v", v, got)
	}

	_, ok, err = ParseID(NoneID)
	if err != nil || ok {
		t.Fatalf("ParseID(none) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
