package proxy

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SiteConfig overrides proxy behaviour for one upstream host. It is read
// from <sites-dir>/<host>.json; "news.example.com" falls back to
// "example.com.json" and then "com.json".
type SiteConfig struct {
	Mode    string            `json:"mode"`
	Headers map[string]string `json:"headers,omitempty"`
}

type siteConfigStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*SiteConfig
}

func newSiteConfigStore(dir string) *siteConfigStore {
	return &siteConfigStore{
		dir:   dir,
		cache: make(map[string]*SiteConfig),
	}
}

// Find returns the config for target's host, or nil.
func (s *siteConfigStore) Find(target string) *SiteConfig {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	s.mu.RLock()
	cfg, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return cfg
	}

	labels := strings.Split(host, ".")
	for i := range labels {
		if cfg = s.load(strings.Join(labels[i:], ".")); cfg != nil {
			break
		}
	}
	s.mu.Lock()
	s.cache[host] = cfg
	s.mu.Unlock()
	return cfg
}

func (s *siteConfigStore) load(host string) *SiteConfig {
	if s.dir == "" || host == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, host+".json"))
	if err != nil {
		return nil
	}
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	cfg.Mode = strings.TrimSpace(strings.ToLower(cfg.Mode))
	return &cfg
}
