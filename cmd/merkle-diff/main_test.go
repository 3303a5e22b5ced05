package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merkle-diff/internal/config"
	"merkle-diff/internal/hash"
	"merkle-diff/internal/tree"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestExecute_FirstRunThenChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	writeFile(t, dir, "b.txt", "bye")

	code, stdout, stderr := run(t, dir)
	assert.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "No previous snapshot found")
	assert.FileExists(t, filepath.Join(dir, config.DefaultSnapshot))

	writeFile(t, dir, "c.txt", "new")
	code, stdout, stderr = run(t, "--fail-on-change", "--no-color", dir)
	assert.Equal(t, exitChanges, code, stderr)
	assert.Contains(t, stdout, "+ c.txt")
	assert.NotContains(t, stderr, "Error:")

	// The snapshot was updated, so a second run sees no changes.
	code, stdout, _ = run(t, "--fail-on-change", dir)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "No changes detected.")
}

func TestExecute_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	writeFile(t, dir, config.DefaultSnapshot, "not json")

	code, _, stderr := run(t, dir)
	assert.Equal(t, exitCorrupt, code)
	assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultSnapshot))
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data))
}

func TestExecute_Failures(t *testing.T) {
	code, _, stderr := run(t, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "Error: ")

	code, _, _ = run(t)
	assert.Equal(t, exitFailure, code, "missing directory argument")

	code, _, _ = run(t, "--algorithm", "md5", t.TempDir())
	assert.Equal(t, exitFailure, code)

	code, _, _ = run(t, "--log-level", "loud", t.TempDir())
	assert.Equal(t, exitFailure, code)
}

func TestExecute_ConfigAndFlags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "keep")
	writeFile(t, dir, "skip.log", "skip")
	writeFile(t, dir, config.FileName, "exclude:\n  - \"*.log\"\n  - \""+config.FileName+"\"\nalgorithm: sha3-256\nsnapshot: state/snap.json\n")

	code, _, stderr := run(t, dir)
	require.Equal(t, exitOK, code, stderr)

	snapPath := filepath.Join(dir, "state", "snap.json")
	code, stdout, stderr := run(t, "--verify", snapPath)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Algorithm: sha3-256")
	assert.Contains(t, stdout, "Files: 1")

	// A flag overrides the config file.
	other := filepath.Join(t.TempDir(), "other.json")
	code, _, stderr = run(t, "--snapshot", other, "--algorithm", "blake2b-256", dir)
	require.Equal(t, exitOK, code, stderr)
	code, stdout, _ = run(t, "--verify", other)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Algorithm: blake2b-256")
}

func TestExecute_Verify(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	code, _, _ := run(t, dir)
	require.Equal(t, exitOK, code)
	snapPath := filepath.Join(dir, config.DefaultSnapshot)

	code, stdout, _ := run(t, "--verify", snapPath)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Snapshot verified")

	// Change one digest without updating the root.
	data, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	good := hash.Sum(hash.SHA256, []byte("hi")).String()
	bad := hash.Sum(hash.SHA256, []byte("ho")).String()
	require.NoError(t, os.WriteFile(snapPath, []byte(strings.Replace(string(data), good, bad, 1)), 0644))

	code, _, stderr := run(t, "--verify", snapPath)
	assert.Equal(t, exitCorrupt, code)
	assert.Contains(t, stderr, "Error: ")

	code, _, _ = run(t, "--verify", filepath.Join(dir, "missing.json"))
	assert.Equal(t, exitFailure, code)
}

func TestExecute_Prove(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	writeFile(t, dir, "dir/b.txt", "bye")
	writeFile(t, dir, "z.txt", "zed")
	code, _, _ := run(t, dir)
	require.Equal(t, exitOK, code)
	snapPath := filepath.Join(dir, config.DefaultSnapshot)

	code, stdout, stderr := run(t, "--verify", snapPath, "--prove", "dir/b.txt")
	require.Equal(t, exitOK, code, stderr)

	var out proofOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "dir/b.txt", out.Path)
	assert.Equal(t, hash.Sum(hash.SHA256, []byte("bye")), out.Digest)
	assert.Equal(t, uint64(1), out.Proof.Index)
	assert.Equal(t, uint64(3), out.Proof.Size)
	assert.True(t, tree.Verify(out.Proof, out.LeafHash, out.Root))

	code, _, stderr = run(t, "--prove", "missing.txt", "--verify", snapPath)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "path not in tree")
}

func TestExecute_DirectoryNamedLikeACommand(t *testing.T) {
	parent := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(parent))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	for _, name := range []string{"help", "completion", "verify", "prove"} {
		writeFile(t, parent, name+"/a.txt", "hi")

		code, stdout, stderr := run(t, name)
		assert.Equal(t, exitOK, code, "%s: %s", name, stderr)
		assert.Contains(t, stdout, "Files: 1", name)
		assert.FileExists(t, filepath.Join(parent, name, config.DefaultSnapshot), name)
	}
}

func TestExecute_VerifyFlagUsage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	code, _, _ := run(t, dir)
	require.Equal(t, exitOK, code)
	snapPath := filepath.Join(dir, config.DefaultSnapshot)

	code, _, stderr := run(t, "--prove", "a.txt", dir)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "--prove requires --verify")

	code, _, stderr = run(t, "--verify", snapPath, dir)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "no directory argument")

	code, _, _ = run(t, "--verify", "", dir)
	assert.Equal(t, exitFailure, code)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, exitOK, exitCodeFor(nil))
	assert.Equal(t, exitChanges, exitCodeFor(errChangesDetected))
	assert.Equal(t, exitFailure, exitCodeFor(os.ErrNotExist))
}
