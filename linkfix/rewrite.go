package linkfix

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var (
	metaCharsetSel   = cascadia.MustCompile("meta[charset]")
	metaHTTPEquivSel = cascadia.MustCompile("meta[http-equiv][content]")
)

// Options controls Rewrite.
type Options struct {
	Site Site
	// Page is where the document lives. Relative hrefs stay relative, and
	// therefore untouched, when it is nil.
	Page *url.URL
	// ContentType is the declared media type, used to pick the charset.
	ContentType string
	// Inject adds the page script instead of rewriting anchors.
	Inject bool
}

// Parse decodes r to UTF-8 according to contentType and any <meta> charset
// declaration, then parses it.
func Parse(r io.Reader, contentType string) (*html.Node, error) {
	utf8r, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := html.Parse(utf8r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Rewrite reads an HTML document from r, retargets its outbound links (or
// injects the page script) and renders the result to w as UTF-8.
func Rewrite(r io.Reader, w io.Writer, opt Options) (Stats, error) {
	doc, err := Parse(r, opt.ContentType)
	if err != nil {
		return Stats{}, err
	}
	site := opt.Site
	if site == "" {
		site = DefaultSite
	}
	var st Stats
	if opt.Inject {
		InjectScript(doc, site)
		st = Survey(doc, opt.Page, site)
	} else {
		st = RetargetDocument(doc, opt.Page, site)
	}
	declareUTF8(doc)
	if err := html.Render(w, doc); err != nil {
		return st, fmt.Errorf("render html: %w", err)
	}
	return st, nil
}

// declareUTF8 updates in-document charset declarations to match the UTF-8
// output of html.Render.
func declareUTF8(doc *html.Node) {
	for _, n := range metaCharsetSel.MatchAll(doc) {
		setAttr(n, "charset", "utf-8")
	}
	for _, n := range metaHTTPEquivSel.MatchAll(doc) {
		if !strings.EqualFold(strings.TrimSpace(getAttr(n, "http-equiv")), "content-type") {
			continue
		}
		setAttr(n, "content", "text/html; charset=utf-8")
	}
}
