package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// caseFolders maps case ids to directories below baseDir
type caseFolders struct {
	baseDir string
}

// Path returns the directory of a case without creating it
func (f caseFolders) Path(caseID string) string {
	return filepath.Join(f.baseDir, SanitizeDirName(caseID))
}

// Ensure creates the case directory
func (f caseFolders) Ensure(caseID string) (string, error) {
	if strings.TrimSpace(caseID) == "" {
		return "", fmt.Errorf("cannot create case folder: empty case id")
	}
	dir := f.Path(caseID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return dir, nil
}

// SanitizeDirName turns a mailbox id such as "<abc@mail.example.com>" into a
// single safe path element
func SanitizeDirName(id string) string {
	id = strings.ReplaceAll(id, "..", "")
	id = unsafeDirChars.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_.")
	if id == "" {
		return "_"
	}
	return id
}

// SanitizeFileName keeps letters of any script, digits, dots, dashes,
// underscores and spaces. Directory parts are dropped.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '.', r == '-', r == '_', r == ' ', r == '(', r == ')':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" || name == "/" {
		return "attachment"
	}
	return name
}
