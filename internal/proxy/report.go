package proxy

import (
	"net/url"

	"golang.org/x/net/html"

	"retarget/linkfix"
)

type linkEntry struct {
	Href   string        `json:"href"`
	Class  linkfix.Class `json:"class"`
	Target string        `json:"target,omitempty"`
}

type reportResult struct {
	URL   string        `json:"url"`
	Site  linkfix.Site  `json:"site"`
	Stats linkfix.Stats `json:"stats"`
	Links []linkEntry   `json:"links"`
}

// buildReport retargets doc and lists every anchor with its outcome.
func buildReport(doc *html.Node, page *url.URL, site linkfix.Site) reportResult {
	res := reportResult{Site: site, Links: []linkEntry{}}
	if page != nil {
		res.URL = page.String()
	}
	res.Stats = linkfix.RetargetDocument(doc, page, site)
	for _, a := range linkfix.Anchors(doc, page) {
		res.Links = append(res.Links, linkEntry{
			Href:   a.Href(),
			Class:  site.Classify(a.Href()),
			Target: a.Target(),
		})
	}
	return res
}
