package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/custody/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ContributionID", id.NewContributionID, "ctb_"},
		{"WithdrawalID", id.NewWithdrawalID, "wdr_"},
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

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ContributionID", id.NewContributionID, id.ParseContributionID},
		{"WithdrawalID", id.NewWithdrawalID, id.ParseWithdrawalID},
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
	if _, err := id.ParseContributionID(id.NewWithdrawalID().String()); err == nil {
		t.Error("ParseContributionID accepted a wdr_ id")
	}
	if _, err := id.ParseWithdrawalID(id.NewContributionID().String()); err == nil {
		t.Error("ParseWithdrawalID accepted a ctb_ id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewWithdrawalID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var fromEmpty id.ID
	if err := fromEmpty.Scan(""); err != nil {
		t.Fatalf("Scan(\"\") failed: %v", err)
	}
	if !fromEmpty.IsNil() {
		t.Error("expected nil after scan of empty string")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewContributionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewContributionID()
	b := id.NewContributionID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewContributionID() calls returned the same ID: %q", a.String())
	}
}
