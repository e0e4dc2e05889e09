// Package util holds small path helpers shared across plugin-publish.
package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeDir returns the user's home directory.
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ConfigDir returns the plugin-publish configuration directory,
// honouring XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "plugin-publish")
	}
	return filepath.Join(HomeDir(), ".config", "plugin-publish")
}

// ExpandPath expands a leading ~ and environment variables in p. Relative
// results are resolved against baseDir. Empty input yields "".
func ExpandPath(p, baseDir string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if p == "~" {
		p = HomeDir()
	} else if strings.HasPrefix(p, "~/") {
		p = filepath.Join(HomeDir(), p[2:])
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}
