package models

import "testing"

func TestKnownType(t *testing.T) {
	for _, value := range []string{TypeInfo, TypeSuccess, TypeWarning, TypeError} {
		if !KnownType(value) {
			t.Fatalf("expected %q to be a known type", value)
		}
	}

	for _, value := range []string{"", "INFO", "urgent", "info "} {
		if KnownType(value) {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
