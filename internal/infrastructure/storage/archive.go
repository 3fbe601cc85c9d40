package storage

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Extraction limits
const (
	maxArchiveEntries = 200
	maxEntryBytes     = 50 << 20
)

type extractedFile struct {
	name string
	path string
	size int64
}

// extractZip unpacks every regular file of the archive into dir, flattening
// nested folders. Entries whose names would escape dir are rejected.
func extractZip(content []byte, dir string) ([]extractedFile, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	if len(r.File) > maxArchiveEntries {
		return nil, fmt.Errorf("zip has %d entries, limit is %d", len(r.File), maxArchiveEntries)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction folder: %w", err)
	}

	var out []extractedFile
	used := make(map[string]int)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		raw := strings.ReplaceAll(entryName(f), "\\", "/")
		cleaned := path.Clean(raw)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
			return nil, fmt.Errorf("zip entry %q escapes the archive", raw)
		}
		base := path.Base(cleaned)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(raw, "__MACOSX/") {
			continue
		}

		name := uniqueName(SanitizeFileName(base), used)
		target := filepath.Join(dir, name)
		if !within(dir, target) {
			return nil, fmt.Errorf("zip entry %q escapes the archive", raw)
		}

		size, err := writeEntry(f, target)
		if err != nil {
			return nil, err
		}
		out = append(out, extractedFile{name: name, path: target, size: size})
	}
	return out, nil
}

func writeEntry(f *zip.File, target string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	dst, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return 0, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > maxEntryBytes {
		return 0, fmt.Errorf("zip entry %s exceeds %d bytes", f.Name, maxEntryBytes)
	}
	return n, nil
}

// entryName decodes names written by Chinese Windows tools, which store GBK
// without setting the UTF-8 flag
func entryName(f *zip.File) string {
	if !f.NonUTF8 || utf8.ValidString(f.Name) {
		return f.Name
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().String(f.Name); err == nil {
		return decoded
	}
	return f.Name
}

func uniqueName(name string, used map[string]int) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
