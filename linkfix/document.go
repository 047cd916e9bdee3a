package linkfix

import (
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	whatwg "github.com/nlnwa/whatwg-url/url"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	anchorSel = cascadia.MustCompile("a")
	baseSel   = cascadia.MustCompile("base[href]")
	bodySel   = cascadia.MustCompile("body")
	rootSel   = cascadia.MustCompile("html")
)

// asciiSpace is the whitespace a browser strips from attribute URLs.
const asciiSpace = " \t\n\f\r"

// Element is an <a> node in a parsed document.
type Element struct {
	node *html.Node
	href string
}

// Href returns the anchor's URL resolved the way a browser resolves it.
func (e *Element) Href() string { return e.href }

// SetTarget writes the target attribute.
func (e *Element) SetTarget(target string) { setAttr(e.node, "target", target) }

// Target returns the current target attribute.
func (e *Element) Target() string { return getAttr(e.node, "target") }

// Node exposes the underlying node.
func (e *Element) Node() *html.Node { return e.node }

// Anchors returns a snapshot of the <a> elements in doc. page is the location
// of the document and may be nil, in which case only absolute hrefs resolve.
func Anchors(doc *html.Node, page *url.URL) []*Element {
	if doc == nil {
		return nil
	}
	base := BaseURL(doc, page)
	nodes := anchorSel.MatchAll(doc)
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		e := &Element{node: n}
		if raw, ok := lookupAttr(n, "href"); ok {
			e.href = ResolveHref(base, raw)
		}
		out = append(out, e)
	}
	return out
}

// BaseURL returns the URL relative references in doc resolve against: the
// first <base href>, itself resolved against page, or page. It returns nil
// when neither yields an absolute URL.
func BaseURL(doc *html.Node, page *url.URL) *whatwg.Url {
	var pageURL *whatwg.Url
	if page != nil {
		if u, err := whatwg.Parse(page.String()); err == nil {
			pageURL = u
		}
	}
	if doc == nil {
		return pageURL
	}
	n := baseSel.MatchFirst(doc)
	if n == nil {
		return pageURL
	}
	u, err := resolve(pageURL, getAttr(n, "href"))
	if err != nil {
		return pageURL
	}
	return u
}

// ResolveHref turns an href attribute value into the string a browser reports
// as the anchor's href, using the WHATWG URL parser. Values that fail to parse
// are returned trimmed but otherwise as written, and so are relative values
// when base is nil.
func ResolveHref(base *whatwg.Url, raw string) string {
	u, err := resolve(base, raw)
	if err != nil {
		return strings.Trim(raw, asciiSpace)
	}
	return u.Href(false)
}

func resolve(base *whatwg.Url, raw string) (*whatwg.Url, error) {
	if base != nil {
		return base.Parse(raw)
	}
	return whatwg.Parse(raw)
}

// Survey classifies the anchors of doc without changing anything.
func Survey(doc *html.Node, page *url.URL, site Site) Stats {
	var st Stats
	for _, a := range Anchors(doc, page) {
		st.count(site.Classify(a.Href()))
	}
	return st
}

// RetargetDocument retargets the external anchors of doc in place.
func RetargetDocument(doc *html.Node, page *url.URL, site Site) Stats {
	anchors := Anchors(doc, page)
	var st Stats
	for _, a := range anchors {
		st.count(site.Classify(a.Href()))
	}
	st.Retargeted = Retarget(site, anchors)
	return st
}

// InjectScript appends the page script for site to the body of doc, so the
// browser retargets links itself when the page loads. It reports false when
// the script is already present.
func InjectScript(doc *html.Node, site Site) bool {
	if doc == nil {
		return false
	}
	if scriptSel.MatchFirst(doc) != nil {
		return false
	}
	parent := bodySel.MatchFirst(doc)
	if parent == nil {
		parent = rootSel.MatchFirst(doc)
	}
	if parent == nil {
		parent = doc
	}
	script := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "id", Val: ScriptID}},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: Script(site)})
	parent.AppendChild(script)
	return true
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
