package proxy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSiteConfigFindBySuffix(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "example.com.json"), []byte(`{"mode":" Browser ","headers":{"Accept-Language":"en"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.org.json"), []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newSiteConfigStore(dir)

	cfg := s.Find("https://News.Example.com:8443/a")
	if cfg == nil {
		t.Fatalf("expected config for subdomain")
	}
	if cfg.Mode != "browser" || cfg.Headers["Accept-Language"] != "en" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if s.Find("http://example.com/") == nil {
		t.Fatalf("expected config for apex host")
	}
	if s.Find("http://example.net/") != nil {
		t.Fatalf("unexpected config for example.net")
	}
	if s.Find("http://broken.org/") != nil {
		t.Fatalf("malformed config must be ignored")
	}
	if s.Find("not a url") != nil {
		t.Fatalf("unexpected config for hostless target")
	}
	if _, ok := s.cache["news.example.com"]; !ok {
		t.Fatalf("lookup result not cached")
	}
}

func TestSiteConfigNoDir(t *testing.T) {
	t.Parallel()
	if newSiteConfigStore("").Find("http://example.com/") != nil {
		t.Fatalf("empty dir must disable site configs")
	}
}
