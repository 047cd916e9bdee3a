package proxy

import "strings"

// Mode selects how a proxied page gets its links retargeted.
type Mode string

const (
	// ModeStatic rewrites target attributes on the server.
	ModeStatic Mode = "static"
	// ModeInject leaves anchors alone and adds the page script.
	ModeInject Mode = "inject"
	// ModeBrowser loads the page in headless Chrome and runs the page script there.
	ModeBrowser Mode = "browser"
)

func ParseMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "static", "server", "":
		return ModeStatic, true
	case "inject", "script":
		return ModeInject, true
	case "browser", "js", "chrome":
		return ModeBrowser, true
	}
	return "", false
}
