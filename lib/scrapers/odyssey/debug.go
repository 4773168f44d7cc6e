package odyssey

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemDebug writes terminal failure bodies into a directory.
type FilesystemDebug struct {
	directory string
}

func NewFilesystemDebug(dir string) (FilesystemDebug, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemDebug{}, err
	}
	return FilesystemDebug{directory: dir}, nil
}

func (o FilesystemDebug) Write(name string, contents string) {
	path := filepath.Join(o.directory, name)
	err := os.WriteFile(path, []byte(contents), 0o600)
	if err != nil {
		slog.Warn("failed to write debug file", "path", path, "err", err)
		return
	}
	slog.Error("wrote failing response for postmortem", "path", path)
}
