package linkfix

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; retarget/1.0; +https://technicalrex.com)"
	defaultAccept    = "text/html,application/xhtml+xml,*/*;q=0.8"
	defaultTimeout   = 15 * time.Second

	// MaxBodyBytes caps how much of an upstream body is read.
	MaxBodyBytes = 10 << 20
)

var (
	ErrEmptyTarget = errors.New("empty target url")
	ErrTooLarge    = errors.New("upstream body too large")
	ErrNotHTML     = errors.New("upstream document is not html")
)

// FetchOptions tunes Fetch. The zero value is usable.
type FetchOptions struct {
	Jar       http.CookieJar
	Timeout   time.Duration
	Transport http.RoundTripper
}

// UpstreamDocument is a fetched response after redirects and decompression.
// Cookies the upstream sets land in the FetchOptions jar.
type UpstreamDocument struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the declared Content-Type, or a sniffed one.
func (d *UpstreamDocument) ContentType() string {
	if ct := d.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return http.DetectContentType(d.Body)
}

// IsHTML reports whether the document should go through the rewriter.
func (d *UpstreamDocument) IsHTML() bool {
	mt, _, err := mime.ParseMediaType(d.ContentType())
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Document parses the body, or fails with ErrNotHTML for other content.
func (d *UpstreamDocument) Document() (*html.Node, error) {
	if !d.IsHTML() {
		return nil, fmt.Errorf("%s (%s): %w", d.URL, d.ContentType(), ErrNotHTML)
	}
	return Parse(bytes.NewReader(d.Body), d.ContentType())
}

// Fetch GETs target with hdr plus browser-like defaults.
func Fetch(ctx context.Context, target string, hdr http.Header, opt FetchOptions) (*UpstreamDocument, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrEmptyTarget
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", defaultAccept)
	}
	// Setting Accept-Encoding ourselves disables the transport's transparent
	// gzip, so decodeBody handles both encodings.
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout, Jar: opt.Jar, Transport: opt.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	header := resp.Header.Clone()
	header.Del("Content-Encoding")
	header.Del("Content-Length")
	return &UpstreamDocument{
		URL:    finalURL,
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = bufio.NewReader(resp.Body)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gr.Close()
		r = gr
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		br := r.(*bufio.Reader)
		if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("zlib: %w", err)
			}
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(br)
			defer fr.Close()
			r = fr
		}
	}
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

func isZlibHeader(b []byte) bool {
	return len(b) == 2 && b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
