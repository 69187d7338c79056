package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/booking-engine/report"
)

// FileExporter writes CSV files into a local directory.
type FileExporter struct {
	Dir string
}

func NewFileExporter(dir string) *FileExporter { return &FileExporter{Dir: dir} }

func (e *FileExporter) Name() string { return "file" }

// Export writes the CSV atomically (temp file + rename) and returns its path.
func (e *FileExporter) Export(_ context.Context, s report.Summary) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.Dir, ObjectName(s))

	tmp, err := os.CreateTemp(e.Dir, ".export-*.csv")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, s); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move export into place: %w", err)
	}
	return path, nil
}
