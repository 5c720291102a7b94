package runtime

import "strings"

// HostInfo describes the page the bridge was loaded into.
type HostInfo struct {
	// The host bridge object is present.
	HostObject bool
	// Reported by the host bridge; empty when it does not say.
	Version   string
	UserAgent string
}

// InApp reports whether the page runs inside the Toss app webview.
func (h HostInfo) InApp() bool {
	return strings.Contains(h.UserAgent, "TossApp")
}
