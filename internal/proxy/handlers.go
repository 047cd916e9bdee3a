package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"retarget/linkfix"
)

const scriptPath = "retarget-links.js"

// renderedPage is what the proxy serves for one upstream URL.
type renderedPage struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Mode        Mode
	Stats       linkfix.Stats
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	raw := r.FormValue("url")
	if strings.TrimSpace(raw) == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	target := buildURL(normalizeTargetURL(raw), r.FormValue("action"), r.FormValue("get"))
	sc := s.sites.Find(target)
	mode, err := s.modeFor(r.FormValue("mode"), sc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Printf("IN %s %s from %s | mode=%s -> target=%s", r.Method, r.URL.String(), r.RemoteAddr, mode, target)

	// Keyed by the requested target: the final URL is only known after a fetch.
	key := cacheKey(target, s.site, mode)
	if page, ok := s.cache.Get(key); ok {
		s.logger.Printf("CACHE hit %s", key)
		s.writePage(w, page, true)
		return
	}
	page, err := s.loadPage(r.Context(), r, target, s.headersFromQuery(r, sc), mode)
	if err != nil {
		s.logger.Printf("ERR %s: %v", target, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.cache.Store(key, page)
	s.writePage(w, page, false)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var page *url.URL
	if raw := strings.TrimSpace(r.URL.Query().Get("base")); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			http.Error(w, "base must be an absolute url", http.StatusBadRequest)
			return
		}
		page = u
	}
	mode := ModeStatic
	if p := r.URL.Query().Get("mode"); p != "" {
		m, ok := ParseMode(p)
		if !ok || m == ModeBrowser {
			http.Error(w, "mode must be static or inject", http.StatusBadRequest)
			return
		}
		mode = m
	}
	body := http.MaxBytesReader(w, r.Body, linkfix.MaxBodyBytes)
	var buf bytes.Buffer
	st, err := linkfix.Rewrite(body, &buf, linkfix.Options{
		Site:        s.site,
		Page:        page,
		ContentType: r.Header.Get("Content-Type"),
		Inject:      mode == ModeInject,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Printf("OUT rewrite base=%v mode=%s %s", page, mode, st)
	s.writePage(w, &renderedPage{
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
		Mode:        mode,
		Stats:       st,
	}, false)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if strings.TrimSpace(raw) == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	target := normalizeTargetURL(raw)
	sc := s.sites.Find(target)
	doc, err := linkfix.Fetch(r.Context(), target, s.headersFromQuery(r, sc), s.fetchOptions(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	tree, err := doc.Document()
	if errors.Is(err, linkfix.ErrNotHTML) {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	pageURL, err := url.Parse(doc.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	res := buildReport(tree, pageURL, s.site)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

func (s *Server) handleScript(w http.ResponseWriter, _ *http.Request) {
	js := linkfix.Script(s.site)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(js)))
	w.Header().Set("Cache-Control", "public, max-age=300")
	io.WriteString(w, js)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

// modeFor picks the request's mode, then the upstream site's, then the default.
func (s *Server) modeFor(param string, sc *SiteConfig) (Mode, error) {
	if strings.TrimSpace(param) != "" {
		m, ok := ParseMode(param)
		if !ok {
			return "", fmt.Errorf("unknown mode %q", param)
		}
		return m, nil
	}
	if sc != nil && sc.Mode != "" {
		if m, ok := ParseMode(sc.Mode); ok {
			return m, nil
		}
	}
	return s.mode, nil
}

func (s *Server) headersFromQuery(r *http.Request, sc *SiteConfig) http.Header {
	hdr := http.Header{}
	if ua := r.URL.Query().Get("ua"); ua != "" {
		hdr.Set("User-Agent", ua)
	}
	if lang := firstNonEmpty(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language")); lang != "" {
		hdr.Set("Accept-Language", lang)
	}
	if sc != nil {
		for k, v := range sc.Headers {
			hdr.Set(k, v)
		}
	}
	return hdr
}

func (s *Server) fetchOptions(r *http.Request) linkfix.FetchOptions {
	return linkfix.FetchOptions{
		Jar:       s.cookieJars.Get(deriveClientKey(r)),
		Timeout:   s.cfg.FetchTimeout,
		Transport: s.cfg.Transport,
	}
}

func (s *Server) loadPage(ctx context.Context, r *http.Request, target string, hdr http.Header, mode Mode) (*renderedPage, error) {
	if mode == ModeBrowser {
		return s.loadInBrowser(ctx, target, hdr)
	}
	doc, err := linkfix.Fetch(ctx, target, hdr, s.fetchOptions(r))
	if err != nil {
		return nil, err
	}
	page := &renderedPage{URL: doc.URL, Status: doc.Status, Mode: mode}
	if !doc.IsHTML() {
		page.ContentType = doc.ContentType()
		page.Body = doc.Body
		s.logger.Printf("OUT %s passthrough ct=%q bytes=%d", doc.URL, page.ContentType, len(doc.Body))
		return page, nil
	}
	pageURL, err := url.Parse(doc.URL)
	if err != nil {
		return nil, fmt.Errorf("final url %q: %w", doc.URL, err)
	}
	var buf bytes.Buffer
	st, err := linkfix.Rewrite(bytes.NewReader(doc.Body), &buf, linkfix.Options{
		Site:        s.site,
		Page:        pageURL,
		ContentType: doc.ContentType(),
		Inject:      mode == ModeInject,
	})
	if err != nil {
		return nil, err
	}
	page.ContentType = "text/html; charset=utf-8"
	page.Body = buf.Bytes()
	page.Stats = st
	s.logger.Printf("OUT %s status=%d mode=%s %s", doc.URL, doc.Status, mode, st)
	return page, nil
}

func (s *Server) loadInBrowser(ctx context.Context, target string, hdr http.Header) (*renderedPage, error) {
	if s.browser == nil {
		return nil, errors.New("browser mode is not available")
	}
	res, err := s.browser.Render(ctx, target, hdr, s.site)
	if err != nil {
		return nil, fmt.Errorf("browser render %s: %w", target, err)
	}
	page := &renderedPage{
		URL:         res.URL,
		Status:      res.Status,
		ContentType: "text/html; charset=utf-8",
		Body:        res.HTML,
		Mode:        ModeBrowser,
	}
	// The browser already wrote the targets; count what it serialised.
	if tree, err := html.Parse(bytes.NewReader(res.HTML)); err == nil {
		pageURL, _ := url.Parse(res.URL)
		page.Stats = linkfix.Survey(tree, pageURL, s.site)
	}
	page.Stats.Retargeted = res.Retargeted
	s.logger.Printf("OUT %s status=%d mode=%s %s", res.URL, res.Status, ModeBrowser, page.Stats)
	return page, nil
}

func (s *Server) writePage(w http.ResponseWriter, page *renderedPage, cached bool) {
	h := w.Header()
	h.Set("Content-Type", page.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(page.Body)))
	h.Set("X-Retarget-Mode", string(page.Mode))
	h.Set("X-Retarget-Count", strconv.Itoa(page.Stats.Retargeted))
	if cached {
		h.Set("X-Retarget-Cache", "hit")
	} else {
		h.Set("X-Retarget-Cache", "miss")
	}
	status := page.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(page.Body)
}
