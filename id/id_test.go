package id_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/xraph/creditledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CreditID", id.NewCreditID, "crd_"},
		{"EntryID", id.NewEntryID, "txn_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixCredit)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixCredit {
		t.Errorf("expected prefix %q, got %q", id.PrefixCredit, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CreditID", id.NewCreditID, id.ParseCreditID},
		{"EntryID", id.NewEntryID, id.ParseEntryID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseCreditID rejects txn_", id.NewEntryID().String(), id.ParseCreditID},
		{"ParseEntryID rejects crd_", id.NewCreditID().String(), id.ParseEntryID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil should be nil")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() should be empty, got %q", id.Nil.String())
	}
}

// Entry IDs must sort in creation order so the ledger's append-only log
// preserves per-account ordering.
func TestEntryIDsSortByCreation(t *testing.T) {
	const n = 16
	generated := make([]string, 0, n)
	for i := 0; i < n; i++ {
		generated = append(generated, id.NewEntryID().String())
		time.Sleep(time.Millisecond)
	}

	sorted := make([]string, n)
	copy(sorted, generated)
	sort.Strings(sorted)

	for i := range generated {
		if generated[i] != sorted[i] {
			t.Fatalf("IDs not K-sortable: position %d has %q, sorted order wants %q",
				i, generated[i], sorted[i])
		}
	}
}
