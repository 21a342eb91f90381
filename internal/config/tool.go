package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var lookPath = exec.LookPath

// FindTool locates the tool executable: an explicit path that is a regular
// file, then name on PATH, then the usual install locations. It returns an
// empty string when nothing is found.
func FindTool(explicit, name string) string {
	if explicit != "" && isFile(explicit) {
		return explicit
	}

	if p, err := lookPath(name); err == nil {
		return p
	}

	for _, c := range toolCandidates(name) {
		if isFile(c) {
			return c
		}
	}
	return ""
}

func toolCandidates(name string) []string {
	var out []string

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		local := os.Getenv("LOCALAPPDATA")
		for _, ver := range []string{"Python313", "Python312", "Python311", "Python310"} {
			if appData != "" {
				out = append(out, filepath.Join(appData, "Python", ver, "Scripts", name+".exe"))
			}
			if local != "" {
				out = append(out, filepath.Join(local, "Programs", "Python", ver, "Scripts", name+".exe"))
			}
		}
		return out
	}

	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".local", "bin", name))
	}
	return append(out, filepath.Join("/usr/local/bin", name), filepath.Join("/usr/bin", name))
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
