package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"go.uber.org/zap"
)

// extractedSuffix names the folder an archive is unpacked into
const extractedSuffix = "_extracted"

// LocalFileStorage implements port.AttachmentStore on the local filesystem.
// Files live in <baseDir>/<case id>/ and archives are unpacked into
// <baseDir>/<case id>/<archive>_extracted/.
type LocalFileStorage struct {
	baseDir string
	folders caseFolders
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		folders: caseFolders{baseDir: baseDir},
		logger:  logger,
	}
}

// Save writes the attachment, then unpacks it when it is a zip archive.
// On an extraction failure the archive itself is still returned.
func (s *LocalFileStorage) Save(ctx context.Context, caseID, fileName string, content []byte) ([]port.StoredFile, error) {
	dir, err := s.folders.Ensure(caseID)
	if err != nil {
		return nil, err
	}

	name, err := freeName(dir, SanitizeFileName(fileName), content)
	if err != nil {
		return nil, err
	}
	fullPath := filepath.Join(dir, name)
	if !within(s.baseDir, fullPath) {
		return nil, fmt.Errorf("path escapes base directory: %s", fullPath)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	stored := []port.StoredFile{{
		FileName: name,
		Path:     fullPath,
		FileType: entity.DetectFileType(name),
		Size:     int64(len(content)),
	}}
	s.logger.Debug("File saved successfully",
		zap.String("case_id", caseID),
		zap.String("path", fullPath),
		zap.Int("size", len(content)))

	if stored[0].FileType != entity.FileTypeArchive {
		return stored, nil
	}

	archiveDir := strings.TrimSuffix(name, filepath.Ext(name)) + extractedSuffix
	members, err := extractZip(content, filepath.Join(dir, archiveDir))
	if err != nil {
		s.logger.Warn("Failed to extract archive",
			zap.String("case_id", caseID),
			zap.String("archive", name),
			zap.Error(err))
		return stored, fmt.Errorf("failed to extract %s: %w", name, err)
	}
	for _, m := range members {
		stored = append(stored, port.StoredFile{
			FileName:      archiveDir + "/" + m.name,
			Path:          m.path,
			FileType:      entity.DetectFileType(m.name),
			Size:          m.size,
			ExtractedFrom: name,
		})
	}

	s.logger.Info("Archive extracted",
		zap.String("case_id", caseID),
		zap.String("archive", name),
		zap.Int("files", len(members)))
	return stored, nil
}

// maxNameAttempts bounds the "name (n).ext" search
const maxNameAttempts = 1000

// freeName returns name, or "stem (n).ext" when a different file already
// holds name. A file with identical content keeps its name so that
// re-saving the same attachment is idempotent.
func freeName(dir, name string, content []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; n <= maxNameAttempts; n++ {
		existing, err := os.ReadFile(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		if bytes.Equal(existing, content) {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	return "", fmt.Errorf("no free file name for %s", name)
}

// List walks the case folder. Extracted members are reported with the
// archive they came from.
func (s *LocalFileStorage) List(ctx context.Context, caseID string) ([]port.StoredFile, error) {
	dir := s.folders.Path(caseID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var out []port.StoredFile
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f := port.StoredFile{
			FileName: rel,
			Path:     path,
			FileType: entity.DetectFileType(path),
			Size:     info.Size(),
		}
		if parent, _, ok := strings.Cut(rel, "/"); ok && strings.HasSuffix(parent, extractedSuffix) {
			f.ExtractedFrom = archiveFor(dir, strings.TrimSuffix(parent, extractedSuffix))
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list case files: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

// Remove deletes the case folder; a missing folder is not an error
func (s *LocalFileStorage) Remove(ctx context.Context, caseID string) error {
	dir := s.folders.Path(caseID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("Failed to delete folder",
			zap.String("case_id", caseID),
			zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

// archiveFor finds the archive file whose stem is stem
func archiveFor(dir, stem string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, stem+".*"))
	for _, m := range matches {
		if entity.DetectFileType(m) == entity.FileTypeArchive {
			return filepath.Base(m)
		}
	}
	return stem + ".zip"
}

// within reports whether path is inside base
func within(base, path string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absPath, absBase+string(filepath.Separator))
}

var _ port.AttachmentStore = (*LocalFileStorage)(nil)
