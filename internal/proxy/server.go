package proxy

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"

	"retarget/linkfix"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>Retarget</h1>
<form action="/fetch" method="get">
<h3>Fetch a page with outbound links opening in a new tab</h3>
URL: <input name="url" size="60"><br>
Mode: <select name="mode">
<option value="static">static</option>
<option value="inject">inject</option>
<option value="browser">browser</option>
</select><br>
<button type="submit">Fetch</button>
</form>
<form action="/report" method="get">
<h3>Link report</h3>
URL: <input name="url" size="60"> <button type="submit">Report</button>
</form>
</body></html>`

const defaultSitesDir = "config/sites"

// Config describes server wiring and runtime behaviour.
type Config struct {
	Site           string        `envconfig:"SITE" default:"http://technicalrex.com"`
	Mode           string        `envconfig:"MODE" default:"static"`
	SitesDir       string        `envconfig:"SITES_DIR" default:"config/sites"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	BrowserTimeout time.Duration `envconfig:"BROWSER_TIMEOUT" default:"25s"`

	IndexHTML string            `ignored:"true"`
	Logger    *log.Logger       `ignored:"true"`
	Clock     func() time.Time  `ignored:"true"`
	Browser   Renderer          `ignored:"true"`
	Transport http.RoundTripper `ignored:"true"`
}

// DefaultConfig populates configuration from RETARGET_* environment variables.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("retarget", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Server exposes the HTTP handlers implementing the proxy behaviour.
type Server struct {
	cfg        Config
	site       linkfix.Site
	mode       Mode
	mux        *http.ServeMux
	handler    http.Handler
	logger     *log.Logger
	cookieJars *cookieJarStore
	cache      *pageCache
	sites      *siteConfigStore
	browser    Renderer
	clock      func() time.Time
}

// New wires a new proxy server with the provided configuration.
func New(cfg Config) (*Server, error) {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	if cfg.Site == "" {
		cfg.Site = string(linkfix.DefaultSite)
	}
	site, err := linkfix.ParseSite(cfg.Site)
	if err != nil {
		return nil, err
	}
	mode := ModeStatic
	if cfg.Mode != "" {
		m, ok := ParseMode(cfg.Mode)
		if !ok {
			return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
		}
		mode = m
	}
	if cfg.Browser == nil {
		cfg.Browser = NewChromeRenderer(cfg.Logger, cfg.BrowserTimeout)
	}
	s := &Server{
		cfg:        cfg,
		site:       site,
		mode:       mode,
		mux:        http.NewServeMux(),
		logger:     cfg.Logger,
		cookieJars: newCookieJarStore(),
		cache:      newPageCache(cfg.Clock, cfg.CacheTTL),
		sites:      newSiteConfigStore(cfg.SitesDir),
		browser:    cfg.Browser,
		clock:      cfg.Clock,
	}
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s, nil
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases the headless browser, if one was started.
func (s *Server) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/fetch", s.handleFetch)
	s.mux.HandleFunc("/rewrite", s.handleRewrite)
	s.mux.HandleFunc("/report", s.handleReport)
	s.mux.HandleFunc("/"+scriptPath, s.handleScript)
	s.mux.HandleFunc("/ping", s.handlePing)
}
