package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SafeName reduces a client-supplied filename to a base name made of
// [a-zA-Z0-9_.-].
func SafeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	base = unsafeName.ReplaceAllString(base, "_")
	if strings.Trim(base, "._") == "" {
		return "upload"
	}
	return base
}

// Workspace is the private scratch directory of one request.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under root (the system temp dir when
// root is empty).
func NewWorkspace(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "sheet-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Save writes the upload into the workspace and returns its path.
func (w *Workspace) Save(u Upload) (string, error) {
	path := filepath.Join(w.Dir, SafeName(u.Filename))
	if err := os.WriteFile(path, u.Data, 0o644); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}
