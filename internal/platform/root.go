package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoreDirName is the directory holding a project-local store.
const StoreDirName = ".notely"

// FindRoot looks upwards from startDir for a directory containing a local
// store (.notely) or a config file (.notely.yaml) and returns it.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, StoreDirName) || hasFile(dir, StoreDirName+".yaml") {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("root not found")
}

// LocalStorePath returns the project-local store found upwards from cwd when
// configured is still DefaultPath. Any other configured path wins.
func LocalStorePath(cwd, configured string) string {
	if configured != DefaultPath {
		return configured
	}
	root, err := FindRoot(cwd)
	if err != nil {
		return configured
	}
	return filepath.Join(root, StoreDirName)
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
