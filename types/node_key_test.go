package types

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenNodeKey(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "config", "node_key.json")

	nodeKey, err := LoadOrGenNodeKey(filePath)
	require.NoError(t, err)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	nodeKey2, err := LoadOrGenNodeKey(filePath)
	require.NoError(t, err)
	require.Equal(t, nodeKey.ID, nodeKey2.ID)
	require.True(t, nodeKey.PrivKey.Equals(nodeKey2.PrivKey))
}

func TestLoadNodeKey(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "node_key.json")

	_, err := LoadNodeKey(filePath)
	require.True(t, os.IsNotExist(err))

	_, err = LoadOrGenNodeKey(filePath)
	require.NoError(t, err)

	nodeKey, err := LoadNodeKey(filePath)
	require.NoError(t, err)
	assert.NotEmpty(t, nodeKey.ID)
}

func TestNodeKeySaveAs(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "node_key.json")
	require.NoFileExists(t, filePath)

	nodeKey, err := GenNodeKey()
	require.NoError(t, err)
	require.NoError(t, nodeKey.SaveAs(filePath))
	require.FileExists(t, filePath)
}

func TestNodeKeyRejectsMismatchedID(t *testing.T) {
	a, err := GenNodeKey()
	require.NoError(t, err)
	b, err := GenNodeKey()
	require.NoError(t, err)

	bz, err := a.MarshalJSON()
	require.NoError(t, err)
	bz = []byte(strings.Replace(string(bz), a.ID.Pretty(), b.ID.Pretty(), 1))

	var nk NodeKey
	require.Error(t, nk.UnmarshalJSON(bz))
}
