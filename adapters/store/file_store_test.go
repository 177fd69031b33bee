package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "portal")

	s, err := NewFileCredentialStore(dir, "api.example.com", "jwt")
	require.NoError(t, err)

	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	require.NoError(t, s.Set(ctx, "abc"))
	token, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Set(ctx, "xyz"))
	token, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, core.ErrNoCredential)
}

func TestFileCredentialStoreSharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := NewFileCredentialStore(dir, "default", "jwt")
	require.NoError(t, err)
	reader, err := NewFileCredentialStore(dir, "default", "jwt")
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "abc"))
	token, err := reader.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestFileCredentialStoreIgnoresCorruptAndForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileCredentialStore(dir, "default", "jwt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte("::: not yaml"), 0o600))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	other, err := NewFileCredentialStore(dir, "default", "other")
	require.NoError(t, err)
	require.NoError(t, other.Set(ctx, "abc"))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, core.ErrNoCredential)
}

func TestNewFileCredentialStoreRejectsBadInput(t *testing.T) {
	_, err := NewFileCredentialStore("", "default", "jwt")
	assert.ErrorIs(t, err, core.ErrConfiguration)

	for _, profile := range []string{"", "..", "a/b"} {
		_, err := NewFileCredentialStore(t.TempDir(), profile, "jwt")
		assert.ErrorIs(t, err, core.ErrConfiguration, profile)
	}
}

func TestFileCredentialStoreLogsUnreadableFile(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := NewFileCredentialStore(t.TempDir(), "default", "jwt", WithFileLogger(logger))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte("token: [unterminated"), 0o600))
	_, err = s.Get(context.Background())
	assert.ErrorIs(t, err, core.ErrNoCredential)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, s.Path(), entry.Data["path"])
}
