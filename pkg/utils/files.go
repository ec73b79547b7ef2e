package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SourceExt is the extension of MatrixScript source files.
const SourceExt = ".mx"

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Resolves ../ and cleans the path
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// ReadSource loads the source file at relPath. It returns the absolute
// path and the text.
func ReadSource(relPath string) (fullPath string, src string, err error) {
	fullPath, _, err = GetPathInfo(relPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "resolve %s", relPath)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", "", errors.Wrap(err, "read source")
	}
	return fullPath, string(data), nil
}

// ModuleName derives a module name from a source path: the base name
// without its extension.
func ModuleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReplaceExt swaps the extension of path for ext, appending when path has
// none.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
