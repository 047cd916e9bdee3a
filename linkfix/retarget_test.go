package linkfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	site := Site("http://technicalrex.com")
	cases := []struct {
		href string
		want Class
	}{
		{"http://technicalrex.com/about", Internal},
		{"http://technicalrex.com", Internal},
		{"http://example.com", External},
		{"https://example.com/x", External},
		{"https://technicalrex.com/about", External},
		{"http://technicalrex.com.evil.com/", Internal},
		{"mailto:a@b.com", Other},
		{"javascript:void(0)", Other},
		{"ftp://example.com/file", Other},
		{"", Other},
		{"HTTP://example.com", Other},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.href, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, site.Classify(tc.href))
		})
	}
}

func TestRetargetLinks(t *testing.T) {
	t.Parallel()
	links := []*Link{
		{URL: "http://technicalrex.com/about"},
		{URL: "http://example.com"},
		{URL: "mailto:a@b.com"},
		{URL: "http://technicalrex.com/relative/path"},
		{URL: "https://golang.org/doc"},
	}
	n := Retarget(DefaultSite, links)
	require.Equal(t, 2, n)

	want := []string{"", NewTab, "", "", NewTab}
	for i, l := range links {
		assert.Equalf(t, want[i], l.Target, "target of %s", l.URL)
	}
}

func TestRetargetLeavesExistingTargets(t *testing.T) {
	t.Parallel()
	links := []*Link{
		{URL: "http://technicalrex.com/", Target: "_self"},
		{URL: "http://example.com/", Target: "frame"},
	}
	Retarget(DefaultSite, links)
	assert.Equal(t, "_self", links[0].Target)
	assert.Equal(t, NewTab, links[1].Target)
}

func TestRetargetIdempotent(t *testing.T) {
	t.Parallel()
	mk := func() []*Link {
		return []*Link{
			{URL: "http://technicalrex.com/a"},
			{URL: "https://example.org/"},
			{URL: "mailto:x@y.z"},
		}
	}
	once := mk()
	Retarget(DefaultSite, once)
	twice := mk()
	Retarget(DefaultSite, twice)
	Retarget(DefaultSite, twice)
	assert.Equal(t, once, twice)
}

func TestRetargetInterfaceSlice(t *testing.T) {
	t.Parallel()
	l := &Link{URL: "https://example.com"}
	n := Retarget(Site("https://technicalrex.com"), []Anchor{l})
	assert.Equal(t, 1, n)
	assert.Equal(t, NewTab, l.Target)
}

func TestParseSite(t *testing.T) {
	t.Parallel()
	s, err := ParseSite("  https://technicalrex.com/ ")
	require.NoError(t, err)
	assert.Equal(t, Site("https://technicalrex.com/"), s)

	_, err = ParseSite("")
	assert.Error(t, err)
	_, err = ParseSite("technicalrex.com")
	assert.Error(t, err)
}

func TestClassMarshalText(t *testing.T) {
	t.Parallel()
	b, err := External.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "external", string(b))
	assert.Equal(t, "other", Class(42).String())
}
