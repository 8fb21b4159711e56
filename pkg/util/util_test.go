package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUserWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{name: "Read-only permission", input: 0444, expected: 0644},
		{name: "Already has write permission", input: 0755, expected: 0755},
		{name: "No permissions", input: 0000, expected: 0200},
		{name: "Execute-only permission", input: 0111, expected: 0311},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, WithUserWritePermission(tc.input))
		})
	}
}

func TestWithUserFullPermission(t *testing.T) {
	assert.Equal(t, os.FileMode(0700), WithUserFullPermission(0000))
	assert.Equal(t, os.FileMode(0755), WithUserFullPermission(0555))
	assert.Equal(t, os.FileMode(0750), WithUserFullPermission(0150))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/mirror")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mirror"), got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestMergeAndDeduplicate(t *testing.T) {
	got := MergeAndDeduplicate([]string{"b", "a"}, nil, []string{"a", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Empty(t, MergeAndDeduplicate())
}

func TestNormalizedRelPathRoundTrip(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "dir", "sub", "file.txt")

	key, err := NormalizedRelPath(root, abs)
	require.NoError(t, err)
	assert.Equal(t, "dir/sub/file.txt", key)
	assert.Equal(t, abs, DenormalizedAbsPath(root, key))

	key, err = NormalizedRelPath(root, root)
	require.NoError(t, err)
	assert.Equal(t, ".", key)
}

func TestIsWithin(t *testing.T) {
	root := t.TempDir()
	testCases := []struct {
		name     string
		path     string
		expected bool
	}{
		{"Same path", root, true},
		{"Child", filepath.Join(root, "a"), true},
		{"Grandchild", filepath.Join(root, "a", "b"), true},
		{"Sibling with shared prefix", root + "-other", false},
		{"Parent", filepath.Dir(root), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsWithin(root, tc.path))
		})
	}
}

func TestInvertMap(t *testing.T) {
	inv := InvertMap(map[int]string{1: "one", 2: "two"})
	assert.Equal(t, map[string]int{"one": 1, "two": 2}, inv)
}
