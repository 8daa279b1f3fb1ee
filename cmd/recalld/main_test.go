package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const testCatalog = `
patterns:
  - id: rust-borrow
    keywords: [borrow, mutable, reference]
    error_codes: [E0502]
    tags: [rust]
    priority: 0.9
  - id: python-import
    keywords: [import, module]
    tags: [python]
`

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestMatchCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0600))

	out, err := execute(t, "", "match", "--patterns", path,
		"--text", "cannot borrow as mutable", "--error-code", "E0502", "--tag", "rust")
	require.NoError(t, err)

	var matches []knowledge.PatternMatch
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "rust-borrow", matches[0].PatternID)
	assert.Equal(t, 1.0, matches[0].Signals.ErrorCodeScore)

	out, err = execute(t, "", "match", "--patterns", path, "--text", "nothing here")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestMatchCmd_Errors(t *testing.T) {
	_, err := execute(t, "", "match", "--text", "x")
	assert.Error(t, err, "--patterns is required")

	_, err = execute(t, "", "match", "--patterns", filepath.Join(t.TempDir(), "patterns.ini"))
	assert.Error(t, err)
}

func TestClusterCmd(t *testing.T) {
	in := `[[1,0],[1,0],[0.99,0.01],[0,1]]`

	out, err := execute(t, in, "cluster", "--min-points", "2")
	require.NoError(t, err)

	var clusters []cluster.Cluster
	require.NoError(t, json.Unmarshal([]byte(out), &clusters))
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Size)

	path := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, os.WriteFile(path, []byte(in), 0600))
	fromFile, err := execute(t, "", "cluster", "--min-points", "2", path)
	require.NoError(t, err)
	assert.JSONEq(t, out, fromFile)
}

func TestClusterCmd_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"bad min points", "[]", []string{"cluster", "--min-points", "0"}},
		{"bad epsilon", "[]", []string{"cluster", "--epsilon", "3"}},
		{"bad json", "{", []string{"cluster"}},
		{"missing file", "", []string{"cluster", "/nonexistent/embeddings.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.stdin, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestServeCmd_RejectsConfigOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9999\n"), 0600))

	_, err := execute(t, "", "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}
