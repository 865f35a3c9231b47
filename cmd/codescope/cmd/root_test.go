package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"index", "update", "watch", "status", "list", "delete", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "codescope version")
}

func TestResolveRoot_DefaultsToCwd(t *testing.T) {
	got, err := resolveRoot(nil)
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, got)
}

func TestResolveRoot_RejectsFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := resolveRoot([]string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestResolveRoot_RejectsMissingPaths(t *testing.T) {
	_, err := resolveRoot([]string{filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}

func TestDeleteCmd_AbortsWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}
	cmd := newDeleteCmd()
	cmd.SetOut(out)
	cmd.SetIn(bytes.NewBufferString("n\n"))
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Aborted")
}
