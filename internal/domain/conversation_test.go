package domain

import (
	"strings"
	"testing"
)

func TestValidConversationID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"conv-1", true},
		{"a_b", true},
		{"0b6f9c1e-3d2a-4f5b-9c8d-7e6f5a4b3c2d", true},
		{strings.Repeat("a", 128), true},
		{"", false},
		{"#", false},
		{"+", false},
		{"x/+/y", false},
		{"a b", false},
		{"zone\x00", false},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		if got := ValidConversationID(tt.id); got != tt.want {
			t.Errorf("ValidConversationID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
