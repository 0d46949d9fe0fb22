package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectUserIDs(t *testing.T) {
	usersFile = ""
	t.Cleanup(func() { usersFile = "" })

	ids, err := collectUserIDs([]string{"a", "b", " a ", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestCollectUserIDsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t,
		os.WriteFile(path, []byte("c\n\nd\nb\n"), 0o644))

	usersFile = path
	t.Cleanup(func() { usersFile = "" })

	// Arguments come first; file entries follow, duplicates dropped.
	ids, err := collectUserIDs([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestCollectUserIDsMissingFile(t *testing.T) {
	usersFile = filepath.Join(t.TempDir(), "absent.txt")
	t.Cleanup(func() { usersFile = "" })

	_, err := collectUserIDs(nil)
	require.Error(t, err)
}
