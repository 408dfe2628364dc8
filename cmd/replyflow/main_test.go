package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/replyflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "replyflow version "+replyflow.Version+"\n", out)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("id: hello-v1\nnodes:\n  - id: greet\n    type: send_message\n    config:\n      text: Hello!\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("id: bad-v1\nnodes:\n  - id: greet\n    type: send_message\n    config: {}\n"), 0o644))

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+good+": hello-v1 version 1, 1 nodes")

	out, err = execute(t, "validate", good, bad)
	assert.EqualError(t, err, "1 of 2 files failed validation")
	assert.Contains(t, out, "✗ "+bad)
}

func TestInvalidConfigFlag(t *testing.T) {
	_, err := execute(t, "--store", "etcd", "version")
	assert.ErrorContains(t, err, "Config.Store.Backend")
}
