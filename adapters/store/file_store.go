package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const credentialFileVersion = "1.0"

// credentialFile is the on-disk layout of one profile
type credentialFile struct {
	Version   string    `yaml:"version"`
	Key       string    `yaml:"key"`
	Token     string    `yaml:"token"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// FileCredentialStore persists the token as YAML under dir/<profile>.yaml.
// The file is readable by the owner only.
type FileCredentialStore struct {
	lock sync.Mutex
	path string
	key  string
	log  logrus.FieldLogger
}

// FileStoreOption configures a FileCredentialStore
type FileStoreOption func(*FileCredentialStore)

// WithFileLogger sets the logger used to report unreadable files
func WithFileLogger(l logrus.FieldLogger) FileStoreOption {
	return func(s *FileCredentialStore) { s.log = l }
}

// NewFileCredentialStore creates a file-backed store. The directory is
// created on first write.
func NewFileCredentialStore(dir, profile, key string, opts ...FileStoreOption) (*FileCredentialStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: credential directory is empty", core.ErrConfiguration)
	}
	if profile == "" || profile != filepath.Base(profile) || profile == "." || profile == ".." {
		return nil, fmt.Errorf("%w: invalid credential profile %q", core.ErrConfiguration, profile)
	}

	s := &FileCredentialStore{
		path: filepath.Join(dir, profile+".yaml"),
		key:  key,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file the token is stored in
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Get reads the token from disk. A missing, empty or unparsable file is
// reported as no credential.
func (s *FileCredentialStore) Get(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", core.ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}

	var doc credentialFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.log.WithError(err).WithField("path", s.path).Warnln("Ignoring unreadable credential file")
		return "", core.ErrNoCredential
	}

	if doc.Token == "" || (s.key != "" && doc.Key != s.key) {
		return "", core.ErrNoCredential
	}

	return doc.Token, nil
}

// Set writes the token, replacing the file atomically
func (s *FileCredentialStore) Set(ctx context.Context, token string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := yaml.Marshal(credentialFile{
		Version:   credentialFileVersion,
		Key:       s.key,
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}

	return nil
}

// Clear removes the file
func (s *FileCredentialStore) Clear(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
