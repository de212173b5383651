package provider

import "os/exec"

// LookPathFunc resolves a binary name to a path.
type LookPathFunc func(name string) (string, error)

// Detect reports which of the given agent binaries are installed.
func Detect(lookPath LookPathFunc, names ...string) map[string]bool {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	found := make(map[string]bool, len(names))
	for _, name := range names {
		_, err := lookPath(name)
		found[name] = err == nil
	}
	return found
}
