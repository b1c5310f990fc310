package pending

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// Resolve canonicalises path to an absolute, symlink-free form. Relative
// paths are taken against the working directory. If that fails (missing
// file, permission denied) path is returned unchanged.
func Resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		slog.Debug("path not resolved", "path", path, "err", err)
		return path
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		slog.Debug("path not resolved", "path", path, "err", err)
		return path
	}
	return canon
}

// ResolveAll resolves each path in order.
func ResolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, Resolve(p))
	}
	return out
}

// FromArgv extracts file paths from a full argument vector as relayed by a
// second instance: argv[0] and anything that looks like a flag are skipped.
func FromArgv(argv []string) []string {
	if len(argv) <= 1 {
		return []string{}
	}
	var files []string
	for _, a := range argv[1:] {
		if a == "" || strings.HasPrefix(a, "-") {
			continue
		}
		files = append(files, a)
	}
	return ResolveAll(files)
}
