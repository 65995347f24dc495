package worker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// workspace is the private scratch directory of one run: <root>/<jobId>/<runId>.
type workspace struct {
	dir string
}

func newWorkspace(root string, jobID uuid.UUID) (*workspace, error) {
	dir := filepath.Join(root, jobID.String(), uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) path(format string, args ...interface{}) string {
	return filepath.Join(w.dir, fmt.Sprintf(format, args...))
}

// cleanup removes the run directory and, when it is empty, the job directory.
func (w *workspace) cleanup() {
	if err := os.RemoveAll(w.dir); err != nil {
		log.Printf("[Workspace] Failed to remove %s: %v", w.dir, err)
	}
	os.Remove(filepath.Dir(w.dir))
}
