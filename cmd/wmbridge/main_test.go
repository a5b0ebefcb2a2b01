package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
agent: cozmo
log_level: error
sim:
  objects:
    - id: 7
      light_cube: true
      pose: {x: 100}
  faces:
    - id: 2
      name: ana
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wmbridge version")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "wmbridge.yaml", testConfig)
	script := writeFile(t, dir, "script.yaml", `
steps:
  - verb: drive-forward
    params: {distance: 100, speed: 50}
`)

	out, err := execute(t, "validate", "-c", cfg, script)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestValidate_UnknownVerb(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "wmbridge.yaml", testConfig)
	script := writeFile(t, dir, "script.yaml", `
steps:
  - verb: fly
`)

	_, err := execute(t, "validate", "-c", cfg, script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fly")
}

func TestInspect_Flat(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "wmbridge.yaml", testConfig)

	out, err := execute(t, "inspect", "-c", cfg, "--format", "flat", "--stored=false")
	require.NoError(t, err)
	assert.Contains(t, out, "objects.obj7.pose.x = 100")
	assert.Contains(t, out, "faces.face2.name = ana")
}

func TestInspect_Mermaid(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "wmbridge.yaml", testConfig)

	out, err := execute(t, "inspect", "-c", cfg, "--format", "mermaid", "--stored=false")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
}

func TestInspect_UnknownFormat(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "wmbridge.yaml", testConfig)

	_, err := execute(t, "inspect", "-c", cfg, "--format", "xml", "--stored=false")
	assert.Error(t, err)
}

func TestInspect_StoredIsRedacted(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "wmbridge.yaml", testConfig+`
store:
  dir: snapshots
  redact: ['^faces\.[^.]+\.name$']
`)

	out, err := execute(t, "inspect", "-c", cfg, "--format", "flat", "--stored=false")
	require.NoError(t, err)
	assert.Contains(t, out, "faces.face2.name = ana")

	out, err = execute(t, "inspect", "-c", cfg, "--format", "flat", "--stored")
	require.NoError(t, err)
	assert.Contains(t, out, "faces.face2.name = ***")
	assert.Contains(t, out, "objects.obj7.pose.x = 100")
	assert.FileExists(t, filepath.Join(dir, "snapshots", "cozmo.json"))
}

func TestValidate_BundledExample(t *testing.T) {
	out, err := execute(t, "validate", "-c", filepath.Join("..", "..", "examples", "cli", "wmbridge.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}
