package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000003_identity_links.up.sql",
		"000002_graph.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	v, err := latestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestLatestVersion_Empty(t *testing.T) {
	_, err := latestVersion(t.TempDir())
	assert.Error(t, err)
}
