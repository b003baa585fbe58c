package object

import (
	"io"
	"strings"
	"testing"
)

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj"), "application/pdf"},
		{"text", []byte("This agreement is made between Acme and Beta."), "text/plain"},
		{"empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.head); got != tt.want {
				t.Fatalf("DetectContentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewKeyNamespacesByOwner(t *testing.T) {
	key, err := NewKey("google:1", "nda.pdf")
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	parts := strings.Split(key, "/")
	if len(parts) != 2 || len(parts[0]) != 64 || !strings.HasSuffix(parts[1], "_nda.pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := NewKey("google:1", "../etc/passwd"); err == nil {
		t.Fatalf("expected traversal name to be rejected")
	}
}

func TestSniffReplaysHead(t *testing.T) {
	body := strings.Repeat("x", SniffLen+10)
	head, r, err := Sniff(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if len(head) != SniffLen {
		t.Fatalf("expected %d head bytes, got %d", SniffLen, len(head))
	}
	all, _ := io.ReadAll(r)
	if string(all) != body {
		t.Fatalf("replayed body mismatch: %d bytes", len(all))
	}
}
