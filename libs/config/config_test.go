package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvGetters(t *testing.T) {
	t.Setenv("BB_TEST_INT", "42")
	t.Setenv("BB_TEST_BAD_INT", "-3")
	t.Setenv("BB_TEST_DURATION", "90s")
	t.Setenv("BB_TEST_BOOL", "yes")
	t.Setenv("BB_TEST_LIST", " a, ,b ,c")
	t.Setenv("BB_TEST_FLOAT", "0.25")

	if got := Int("BB_TEST_INT", 1); got != 42 {
		t.Fatalf("Int=%d, want 42", got)
	}
	if got := Int("BB_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback=%d, want 7", got)
	}
	if got := Duration("BB_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("Duration=%s, want 90s", got)
	}
	if got := Float("BB_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float=%v, want 0.25", got)
	}
	if got := Float("BB_TEST_LIST", 1); got != 1 {
		t.Fatalf("Float fallback=%v, want 1", got)
	}
	if !Bool("BB_TEST_BOOL", false) {
		t.Fatal("expected Bool true")
	}
	if got := List("BB_TEST_LIST", ""); len(got) != 3 || got[1] != "b" {
		t.Fatalf("List=%v", got)
	}
	if _, err := Port("BB_TEST_BAD_INT", "1"); err == nil {
		t.Fatal("expected port validation error")
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.yaml")
	if err := os.WriteFile(path, []byte("name: Fade Lab\nunknown: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out struct {
		Name string `yaml:"name"`
	}
	if err := LoadYAML(path, &out); err == nil {
		t.Fatal("expected unknown field error")
	}

	if err := os.WriteFile(path, []byte("name: Fade Lab\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadYAML(path, &out); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if out.Name != "Fade Lab" {
		t.Fatalf("unexpected name %q", out.Name)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
