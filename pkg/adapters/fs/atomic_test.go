package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("Replaces Existing Backup", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "backup.json")
		if err := os.WriteFile(target, []byte(`{"old":true}`), 0644); err != nil {
			t.Fatal(err)
		}

		if err := WriteFileAtomic(target, []byte(`{"notes":[]}`), 0600); err != nil {
			t.Fatalf("WriteFileAtomic failed: %v", err)
		}

		got, err := os.ReadFile(target)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != `{"notes":[]}` {
			t.Errorf("unexpected content %q", got)
		}

		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), TempFilePrefix) {
				t.Errorf("temp file %s left behind", e.Name())
			}
		}
	})

	t.Run("Fails Without Directory", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "missing", "backup.yaml")
		if err := WriteFileAtomic(target, []byte("x"), 0644); err == nil {
			t.Error("expected error when directory is missing")
		}
	})
}
