package kernel

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	doc := strings.NewReader(`handle_count = 128`)
	cfg, err := LoadConfig(doc)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	want.HandleCount = 128
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("LoadConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsMalformedDocument(t *testing.T) {
	if _, err := LoadConfig(strings.NewReader("not = [valid")); err == nil {
		t.Fatalf("expected an error for malformed TOML")
	}
}
