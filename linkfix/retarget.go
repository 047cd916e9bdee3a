// Package linkfix makes outbound links open in a new browser tab.
//
// A link is outbound when its resolved URL uses the http or https scheme and
// does not start with the site identifier. The comparison is a literal string
// prefix match, not an origin comparison: a site of "http://technicalrex.com"
// also claims "http://technicalrex.com.evil.com".
package linkfix

import (
	"fmt"
	"strings"
)

// NewTab is the target value that opens a link in a new browsing context.
const NewTab = "_blank"

// DefaultSite is used when no site identifier is configured.
const DefaultSite Site = "http://technicalrex.com"

// Site is the URL prefix of the home site.
type Site string

// ParseSite validates a configured site identifier. The value is kept
// verbatim apart from surrounding whitespace.
func ParseSite(raw string) (Site, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("site identifier is empty")
	}
	if !isHTTP(s) {
		return "", fmt.Errorf("site identifier %q is not an http(s) url", s)
	}
	return Site(s), nil
}

// Class is the outcome of comparing a resolved URL with the site.
type Class int

const (
	// Other covers every non-HTTP scheme and empty hrefs.
	Other Class = iota
	Internal
	External
)

func (c Class) String() string {
	switch c {
	case Internal:
		return "internal"
	case External:
		return "external"
	default:
		return "other"
	}
}

// MarshalText lets Class appear by name in JSON reports.
func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Classify reports how href relates to the site.
func (s Site) Classify(href string) Class {
	if !isHTTP(href) {
		return Other
	}
	if strings.HasPrefix(href, string(s)) {
		return Internal
	}
	return External
}

func isHTTP(href string) bool {
	return strings.HasPrefix(href, "http:") || strings.HasPrefix(href, "https:")
}

// Anchor is a hyperlink owned by some document.
type Anchor interface {
	// Href returns the resolved absolute URL, or "" when there is none.
	Href() string
	SetTarget(target string)
}

// Link is a detached anchor, useful when there is no document at hand.
type Link struct {
	URL    string
	Target string
}

func (l *Link) Href() string           { return l.URL }
func (l *Link) SetTarget(target string) { l.Target = target }

// Retarget sets the target of every external anchor to NewTab and returns how
// many anchors it wrote. Other anchors are not touched. Running it again on
// the same anchors gives the same result.
func Retarget[A Anchor](site Site, anchors []A) int {
	n := 0
	for _, a := range anchors {
		if site.Classify(a.Href()) != External {
			continue
		}
		a.SetTarget(NewTab)
		n++
	}
	return n
}

// Stats summarises one pass over a document.
type Stats struct {
	Anchors    int `json:"anchors"`
	Internal   int `json:"internal"`
	External   int `json:"external"`
	Other      int `json:"other"`
	Retargeted int `json:"retargeted"`
}

func (st *Stats) count(c Class) {
	st.Anchors++
	switch c {
	case Internal:
		st.Internal++
	case External:
		st.External++
	default:
		st.Other++
	}
}

func (st Stats) String() string {
	return fmt.Sprintf("anchors=%d internal=%d external=%d other=%d retargeted=%d",
		st.Anchors, st.Internal, st.External, st.Other, st.Retargeted)
}
