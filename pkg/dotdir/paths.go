package dotdir

import (
	"path/filepath"
)

const (
	sqliteFile = "graphstack.sqlite"
	modelFile  = "model.toml"
)

// SQLitePath returns path when set, otherwise the database file inside the
// target directory.
func (m *Manager) SQLitePath(overrideDir, path string) (string, error) {
	return m.resolve(overrideDir, path, sqliteFile)
}

// ModelPath returns path when set, otherwise the model definition inside the
// target directory.
func (m *Manager) ModelPath(overrideDir, path string) (string, error) {
	return m.resolve(overrideDir, path, modelFile)
}

func (m *Manager) resolve(overrideDir, path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
