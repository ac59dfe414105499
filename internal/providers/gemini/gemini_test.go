package gemini

import (
	"testing"
)

func TestSplitBaseURLAndVersion(t *testing.T) {
	cases := []struct {
		in          string
		wantBase    string
		wantVersion string
	}{
		{"https://generativelanguage.googleapis.com/v1beta", "https://generativelanguage.googleapis.com/", "v1beta"},
		{"https://generativelanguage.googleapis.com/v1beta/", "https://generativelanguage.googleapis.com/", "v1beta"},
		{"https://example.test", "https://example.test/", ""},
		{"https://example.test/custom/v1", "https://example.test/custom/", "v1"},
	}

	for _, c := range cases {
		base, ver := splitBaseURLAndVersion(c.in)
		if base != c.wantBase || ver != c.wantVersion {
			t.Errorf("splitBaseURLAndVersion(%q) = (%q, %q), want (%q, %q)", c.in, base, ver, c.wantBase, c.wantVersion)
		}
	}
}

func TestLooksLikeAPIVersion(t *testing.T) {
	cases := map[string]bool{
		"v1beta": true,
		"v1":     true,
		"v2":     true,
		"beta":   false,
		"v":      false,
		"":       false,
	}
	for in, want := range cases {
		if got := looksLikeAPIVersion(in); got != want {
			t.Errorf("looksLikeAPIVersion(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProvider_Name(t *testing.T) {
	p := &Provider{model: "gemini-1.5-pro"}
	if p.Name() != "gemini" {
		t.Fatalf("expected 'gemini', got %q", p.Name())
	}
}
