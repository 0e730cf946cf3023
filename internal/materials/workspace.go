package materials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
)

// Workspace stores generated documents under root/<fingerprint>/,
// one file per artifact version. The returned path is what gets
// recorded as the artifact ref.
type Workspace struct {
	root string
}

// NewWorkspace creates the workspace root if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, eris.New("workspace root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create workspace root %s", root)
	}
	return &Workspace{root: root}, nil
}

// Save writes one document version and returns its path.
func (w *Workspace) Save(fingerprint string, stage model.Stage, version int, content string) (string, error) {
	dir := filepath.Join(w.root, fingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create artifact dir for %s", fingerprint)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-v%d.md", stage, version))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrapf(err, "write artifact %s", path)
	}
	return path, nil
}

// Load reads a document back by its recorded ref.
func (w *Workspace) Load(ref string) (string, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", eris.Wrapf(err, "read artifact %s", ref)
	}
	return string(data), nil
}
