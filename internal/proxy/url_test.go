package proxy

import "testing"

func TestBuildURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		base   string
		action string
		get    string
		want   string
	}{
		{
			name:   "https wiki random",
			base:   "https://ru.wikipedia.org/wiki/%D0%97%D0%B0%D0%B3%D0%BB%D0%B0%D0%B2%D0%BD%D0%B0%D1%8F_%D1%81%D1%82%D1%80%D0%B0%D0%BD%D0%B8%D1%86%D0%B0",
			action: "/wiki/%D0%A1%D0%BB%D1%83%D1%87%D0%B0%D0%B9%D0%BD%D0%B0%D1%8F_%D1%81%D1%82%D1%80%D0%B0%D0%BD%D0%B8%D1%86%D0%B0",
			want:   "https://ru.wikipedia.org/wiki/%D0%A1%D0%BB%D1%83%D1%87%D0%B0%D0%B9%D0%BD%D0%B0%D1%8F_%D1%81%D1%82%D1%80%D0%B0%D0%BD%D0%B8%D1%86%D0%B0",
		},
		{
			name:   "relative same dir",
			base:   "https://example.com/path/dir/page.html",
			action: "next.html",
			want:   "https://example.com/path/dir/next.html",
		},
		{
			name:   "root relative",
			base:   "https://example.com/path/index.html",
			action: "/other/page",
			want:   "https://example.com/other/page",
		},
		{
			name: "append get",
			base: "https://example.com/path",
			get:  "a=b",
			want: "https://example.com/path?a=b",
		},
		{
			name: "append get to existing query",
			base: "https://example.com/path?x=1",
			get:  "y=2",
			want: "https://example.com/path?x=1&y=2",
		},
		{
			name:   "absolute action",
			base:   "https://example.com/path",
			action: "http://other.com/page",
			want:   "http://other.com/page",
		},
		{
			name:   "double encoded base",
			base:   "https%3A%2F%2Fexample.com%2Fdir%2Fpage.html",
			action: "next.html",
			want:   "https://example.com/dir/next.html",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := buildURL(tc.base, tc.action, tc.get); got != tc.want {
				t.Fatalf("buildURL(%q, %q, %q) = %q, want %q", tc.base, tc.action, tc.get, got, tc.want)
			}
		})
	}
}

func TestNormalizeTargetURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"encoded https", "https%3A%2F%2Fexample.com%2Fpath", "https://example.com/path"},
		{"no scheme adds http", "example.com/path", "http://example.com/path"},
		{"scheme relative", "//example.com/", "http://example.com/"},
		{"upper case scheme kept", "HTTPS://example.com", "HTTPS://example.com"},
		{"blank", "   ", ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeTargetURL(tc.in); got != tc.want {
				t.Fatalf("normalizeTargetURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestURLDecodeMalformed(t *testing.T) {
	t.Parallel()
	if got := urlDecode("100%zz%4"); got != "100%zz%4" {
		t.Fatalf("urlDecode kept malformed escapes wrong: %q", got)
	}
	if got := urlDecode("a%20b"); got != "a b" {
		t.Fatalf("urlDecode(%q) = %q", "a%20b", got)
	}
}
