//go:build linux

package clip

// wl-copy (wl-clipboard) owns the Wayland selection for us. The native writer
// only reaches X11, so under a Wayland compositor this is the path that works.
func defaultHelper() (string, []string) {
	return "wl-copy", []string{"--type", MIMEPlaceholder}
}
