package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "notely %v", args)
}

type dump struct {
	Items map[string]json.RawMessage `json:"items"`
}

func readDump(t *testing.T, path string) dump {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var d dump
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func TestCLI_AddEditDeleteExport(t *testing.T) {
	store := t.TempDir()
	out := filepath.Join(t.TempDir(), "dump.json")

	run(t, "--path", store, "add", "--title", " Milk ", "--text", "2l", "--type", "todo")
	run(t, "--path", store, "add", "--title", "Tea", "--text", "green", "--type", "journal")
	run(t, "--path", store, "edit", "1", "--title", "Coffee", "--text", "black")
	run(t, "--path", store, "delete", "0")
	run(t, "--path", store, "options", "off")
	run(t, "--path", store, "export", out)

	d := readDump(t, out)
	var notes []map[string]any
	require.NoError(t, json.Unmarshal(d.Items["notes"], &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "Coffee", notes[0]["title"])
	assert.Equal(t, "black", notes[0]["text"])
	assert.Equal(t, "journal", notes[0]["type"])
	assert.JSONEq(t, `{"floatingButton":false}`, string(d.Items["options"]))
}

func TestCLI_ImportReplace(t *testing.T) {
	store := t.TempDir()
	in := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(in, []byte("version: 1\nitems:\n  notes:\n    - title: Seeded\n      text: from yaml\n"), 0644))

	run(t, "--path", store, "add", "--title", "Old", "--text", "x", "--type", "journal")
	run(t, "--path", store, "import", "--replace", in)

	out := filepath.Join(t.TempDir(), "after.json")
	run(t, "--path", store, "export", out)
	d := readDump(t, out)
	assert.JSONEq(t, `[{"title":"Seeded","text":"from yaml"}]`, string(d.Items["notes"]))
}

func TestCLI_RejectsInvalidIndex(t *testing.T) {
	rootCmd.SetArgs([]string{"--path", t.TempDir(), "delete", "-1"})
	assert.Error(t, rootCmd.Execute())
}
