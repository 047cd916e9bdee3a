package linkfix

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body><a href="https://example.com/">x</a></body></html>`

func TestFetchRedirectAndHeaders(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-ua", r.Header.Get("User-Agent"))
		assert.Equal(t, defaultAccept, r.Header.Get("Accept"))
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hdr := http.Header{}
	hdr.Set("User-Agent", "custom-ua")
	doc, err := Fetch(context.Background(), srv.URL+"/old", hdr, FetchOptions{Jar: jar})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/new", doc.URL)
	assert.Equal(t, http.StatusOK, doc.Status)
	assert.Equal(t, samplePage, string(doc.Body))
	assert.True(t, doc.IsHTML())
	cookies := jar.Cookies(mustURL(t, srv.URL))
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
}

func TestFetchDecodesBody(t *testing.T) {
	t.Parallel()
	encoders := map[string]func(*bytes.Buffer) (func([]byte), func()){
		"gzip": func(b *bytes.Buffer) (func([]byte), func()) {
			w := gzip.NewWriter(b)
			return func(p []byte) { _, _ = w.Write(p) }, func() { _ = w.Close() }
		},
		"deflate": func(b *bytes.Buffer) (func([]byte), func()) {
			w := zlib.NewWriter(b)
			return func(p []byte) { _, _ = w.Write(p) }, func() { _ = w.Close() }
		},
		"raw-deflate": func(b *bytes.Buffer) (func([]byte), func()) {
			w, _ := flate.NewWriter(b, flate.DefaultCompression)
			return func(p []byte) { _, _ = w.Write(p) }, func() { _ = w.Close() }
		},
	}
	for name, enc := range encoders {
		name, enc := name, enc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			write, closeFn := enc(&buf)
			write([]byte(samplePage))
			closeFn()
			header := strings.TrimPrefix(name, "raw-")
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", header)
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			doc, err := Fetch(context.Background(), srv.URL, nil, FetchOptions{})
			require.NoError(t, err)
			assert.Equal(t, samplePage, string(doc.Body))
			assert.Empty(t, doc.Header.Get("Content-Encoding"))
		})
	}
}

func TestFetchEmptyTarget(t *testing.T) {
	t.Parallel()
	_, err := Fetch(context.Background(), "  ", nil, FetchOptions{})
	assert.True(t, errors.Is(err, ErrEmptyTarget))
}

func TestUpstreamDocumentIsHTML(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ct   string
		body string
		want bool
	}{
		{"text/html; charset=utf-8", "", true},
		{"application/xhtml+xml", "", true},
		{"application/json", "{}", false},
		{"", "<!DOCTYPE html><html></html>", true},
		{"", "\x89PNG\r\n\x1a\n", false},
	}
	for _, tc := range cases {
		d := &UpstreamDocument{Header: http.Header{}, Body: []byte(tc.body)}
		if tc.ct != "" {
			d.Header.Set("Content-Type", tc.ct)
		}
		assert.Equalf(t, tc.want, d.IsHTML(), "content type %q", tc.ct)
	}
}

func TestUpstreamDocumentDocument(t *testing.T) {
	t.Parallel()
	d := &UpstreamDocument{URL: "http://example.com/", Header: http.Header{}, Body: []byte(samplePage)}
	d.Header.Set("Content-Type", "text/html; charset=utf-8")
	doc, err := d.Document()
	require.NoError(t, err)
	assert.Len(t, Anchors(doc, nil), 1)

	d = &UpstreamDocument{URL: "http://example.com/a.json", Header: http.Header{}, Body: []byte("{}")}
	d.Header.Set("Content-Type", "application/json")
	_, err = d.Document()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotHTML))
	assert.Contains(t, err.Error(), "application/json")
}
