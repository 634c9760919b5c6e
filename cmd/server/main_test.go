package main

import (
	"strings"
	"testing"
)

func TestIsWeakSecret(t *testing.T) {
	cases := []struct {
		secret string
		weak   bool
	}{
		{secret: "short", weak: true},
		{secret: strings.Repeat("a", 31), weak: true},
		{secret: "please-change-me-" + strings.Repeat("x", 32), weak: true},
		{secret: "YOUR-SECRET-KEY-" + strings.Repeat("x", 32), weak: true},
		{secret: "k3J9vQ2mX7pL4wR8tY1nB6cF0hD5sG2z", weak: false},
	}
	for _, tc := range cases {
		if got := isWeakSecret(tc.secret); got != tc.weak {
			t.Fatalf("isWeakSecret(%q) want %v got %v", tc.secret, tc.weak, got)
		}
	}
}
