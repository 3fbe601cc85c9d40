package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestLocalFileStorage_SavePlainFile(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())

	stored, err := s.Save(context.Background(), "<abc@mail.example.com>", "cursor receipt.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Equal(t, "cursor receipt.pdf", stored[0].FileName)
	assert.Equal(t, entity.FileTypePDF, stored[0].FileType)
	assert.Equal(t, int64(8), stored[0].Size)
	assert.Equal(t, filepath.Join(base, "abc_mail.example.com", "cursor receipt.pdf"), stored[0].Path)

	data, err := os.ReadFile(stored[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestLocalFileStorage_SaveArchive(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())

	archive := buildZip(t, map[string]string{
		"invoices/cursor.png":   "png",
		"invoices/claude.pdf":   "pdf",
		"__MACOSX/._cursor.png": "junk",
		"notes/":                "",
	})

	stored, err := s.Save(context.Background(), "42", "receipts.zip", archive)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, "receipts.zip", stored[0].FileName)
	assert.Equal(t, entity.FileTypeArchive, stored[0].FileType)
	assert.Empty(t, stored[0].ExtractedFrom)

	names := map[string]string{}
	for _, f := range stored[1:] {
		assert.Equal(t, "receipts.zip", f.ExtractedFrom)
		names[f.FileName] = f.FileType
		_, err := os.Stat(f.Path)
		assert.NoError(t, err)
	}
	assert.Equal(t, entity.FileTypeImage, names["receipts_extracted/cursor.png"])
	assert.Equal(t, entity.FileTypePDF, names["receipts_extracted/claude.pdf"])

	listed, err := s.List(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "receipts.zip", listed[0].FileName)
	assert.Equal(t, "receipts_extracted/claude.pdf", listed[1].FileName)
	assert.Equal(t, "receipts.zip", listed[1].ExtractedFrom)
}

func TestLocalFileStorage_ArchiveNameCollision(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())

	archive := buildZip(t, map[string]string{
		"a/invoice.pdf": "one",
		"b/invoice.pdf": "two",
	})
	stored, err := s.Save(context.Background(), "7", "bundle.zip", archive)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	names := []string{stored[1].FileName, stored[2].FileName}
	assert.ElementsMatch(t, []string{"bundle_extracted/invoice.pdf", "bundle_extracted/invoice_2.pdf"}, names)
}

func TestLocalFileStorage_DuplicateAttachmentNames(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	first, err := s.Save(ctx, "9", "image.png", []byte("cursor receipt"))
	require.NoError(t, err)
	second, err := s.Save(ctx, "9", "image.png", []byte("chatgpt receipt"))
	require.NoError(t, err)
	third, err := s.Save(ctx, "9", "image.png", []byte("claude receipt"))
	require.NoError(t, err)

	assert.Equal(t, "image.png", first[0].FileName)
	assert.Equal(t, "image (1).png", second[0].FileName)
	assert.Equal(t, "image (2).png", third[0].FileName)

	data, err := os.ReadFile(first[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "cursor receipt", string(data))
	data, err = os.ReadFile(second[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "chatgpt receipt", string(data))

	// a second pass over the same mail lands on the same files
	again, err := s.Save(ctx, "9", "image.png", []byte("chatgpt receipt"))
	require.NoError(t, err)
	assert.Equal(t, "image (1).png", again[0].FileName)

	listed, err := s.List(ctx, "9")
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestLocalFileStorage_RejectsTraversal(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())

	archive := buildZip(t, map[string]string{"../../evil.png": "x"})
	stored, err := s.Save(context.Background(), "9", "bad.zip", archive)
	require.Error(t, err)
	require.Len(t, stored, 1, "the archive itself is kept")

	_, statErr := os.Stat(filepath.Join(base, "..", "evil.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalFileStorage_CorruptArchive(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())

	stored, err := s.Save(context.Background(), "9", "broken.zip", []byte("not a zip"))
	require.Error(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "broken.zip", stored[0].FileName)
}

func TestLocalFileStorage_Remove(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	_, err := s.Save(ctx, "1", "a.png", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "1"))
	require.NoError(t, s.Remove(ctx, "1"))

	listed, err := s.List(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestLocalFileStorage_EmptyCaseID(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	_, err := s.Save(context.Background(), "  ", "a.png", []byte("x"))
	assert.Error(t, err)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"receipt.pdf", "receipt.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\发票.png`, "发票.png"},
		{"a:b*c?.png", "a_b_c_.png"},
		{"..", "attachment"},
		{"", "attachment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), tt.in)
	}
}

func TestSanitizeDirName(t *testing.T) {
	assert.Equal(t, "abc_mail.example.com", SanitizeDirName("<abc@mail.example.com>"))
	assert.Equal(t, "18f2a", SanitizeDirName("18f2a"))
	assert.Equal(t, "_", SanitizeDirName("../"))
}
