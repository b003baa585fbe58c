package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "owner/nda.pdf", want: "owner/nda.pdf"},
		{name: "simple prefix", prefix: "contracts", key: "owner/nda.pdf", want: "contracts/owner/nda.pdf"},
		{name: "prefix trailing slash", prefix: "contracts/", key: "owner/nda.pdf", want: "contracts/owner/nda.pdf"},
		{name: "prefix and key slashes", prefix: "/contracts/", key: "/owner/nda.pdf", want: "contracts/owner/nda.pdf"},
		{name: "nested prefix", prefix: "contracts/prod", key: "owner/nda.pdf", want: "contracts/prod/owner/nda.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
