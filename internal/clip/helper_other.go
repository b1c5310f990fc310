//go:build !linux

package clip

// No helper ships by default outside Linux; the native writer covers
// NSPasteboard and the Win32 clipboard. A helper can still be configured.
func defaultHelper() (string, []string) {
	return "", []string{"--type", MIMEPlaceholder}
}
