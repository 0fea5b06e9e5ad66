package admin

import (
	"context"
	"testing"

	"github.com/fastly/pubsub/auth"
)

func TestGenerateKeyStoresAndReturnsDistinctIDs(t *testing.T) {
	keys := auth.NewMapKeyStore()
	ctx := context.Background()

	a, err := GenerateKey(ctx, keys)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	b, err := GenerateKey(ctx, keys)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("two generated keys collided on id %q", a.ID)
	}
	if len(a.ID) != 8 {
		t.Fatalf("id = %q, want 8 hex chars", a.ID)
	}
	if len(a.Value) != 40 {
		t.Fatalf("value = %q, want 40 hex chars", a.Value)
	}

	stored, err := keys.Lookup(ctx, a.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(stored) != a.Value {
		t.Fatalf("stored = %q, want %q", stored, a.Value)
	}
}
