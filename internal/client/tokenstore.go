package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

type stateFile struct {
	Token string `yaml:"jwt_token"`
}

// FileTokenStore keeps the token in a small YAML file.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultStatePath is ~/.config/boardctl/state.yaml, or the working directory
// when no config dir is known.
func DefaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "boardctl-state.yaml"
	}
	return filepath.Join(dir, "boardctl", "state.yaml")
}

// LoadToken returns "" without error when the file does not exist.
func (f *FileTokenStore) LoadToken() (string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read state file: %w", err)
	}
	var state stateFile
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return "", fmt.Errorf("parse state file %s: %w", f.path, err)
	}
	return state.Token, nil
}

func (f *FileTokenStore) SaveToken(token string) error {
	raw, err := yaml.Marshal(stateFile{Token: token})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func (f *FileTokenStore) ClearToken() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

type noTokenStore struct{}

func (noTokenStore) LoadToken() (string, error) { return "", nil }
func (noTokenStore) SaveToken(string) error     { return nil }
func (noTokenStore) ClearToken() error          { return nil }
