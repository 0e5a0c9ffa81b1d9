package provider

import (
	"strings"
	"testing"

	"trafego/trafegodns/types"
)

func TestRegistry(t *testing.T) {
	Register("stub", func(s Settings) (Provider, error) {
		return newFakeProvider(s.Zone), nil
	})

	p, err := New("stub", Settings{Zone: "example.com"})
	if err != nil {
		t.Fatalf("New(stub) error = %v", err)
	}
	if p.ZoneName() != "example.com" {
		t.Errorf("ZoneName() = %q, want example.com", p.ZoneName())
	}

	_, err = New("nonexistent", Settings{})
	if err == nil {
		t.Fatal("New(nonexistent) should fail")
	}
	if !strings.Contains(err.Error(), "stub") {
		t.Errorf("error %q should list the registered adapters", err)
	}
}

func TestOwns(t *testing.T) {
	withMarker := types.DNSRecord{Comment: OwnershipMarker}
	tests := []struct {
		name string
		info Info
		rec  types.DNSRecord
		want bool
	}{
		{"marker present", Info{SupportsComments: true}, withMarker, true},
		{"marker absent", Info{SupportsComments: true}, types.DNSRecord{Comment: "manual"}, false},
		{"no comment support", Info{}, withMarker, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Owns(tt.info, tt.rec); got != tt.want {
				t.Errorf("Owns() = %v, want %v", got, tt.want)
			}
		})
	}
}
