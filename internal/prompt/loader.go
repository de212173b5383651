// Package prompt loads the agent prompts and builds the instance header
// each agent is given.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Prompt names.
const (
	LinearReader = "agent1-linear-reader"
	Worker       = "agent2-worker"
	LinearWriter = "agent3-linear-writer"
)

//go:embed defaults/*.md
var defaults embed.FS

// Loader reads <Dir>/<name>.md, falling back to the built-in prompt of the
// same name.
type Loader struct {
	Dir string
}

// Load returns the prompt text for name.
func (l Loader) Load(name string) (string, error) {
	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, name+".md"))
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read prompt %s: %w", name, err)
		}
	}

	data, err := defaults.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return strings.TrimSpace(string(data)), nil
}
