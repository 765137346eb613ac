// Package gsdenv captures details about where gsd's command-line tools
// should look for files and cache downloads by default. Inspect it with
// `gsd env`.
package gsdenv

import (
	"os"
	"path/filepath"
)

// Root is the default directory gsd subcommands look in for .gsd files
// when none is given explicitly.
var Root = findRoot()

func findRoot() string {
	if env := os.Getenv("GSDROOT"); env != "" {
		return env
	}
	return os.ExpandEnv("$HOME/gsd")
}

// CacheDir returns the directory gsd fetch caches downloaded files under,
// creating it if necessary. It returns "" (disabling caching) if the
// user's cache directory cannot be determined.
func CacheDir() string {
	ucd, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(ucd, "gsd")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return dir
}
