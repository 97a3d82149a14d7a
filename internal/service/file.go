package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/min9-wan9/Chat/internal/metrics"
	"github.com/min9-wan9/Chat/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// FileURLPrefix is the public path stored files are served under.
const FileURLPrefix = "/api/files/"

// FileService 负责上传文件的落盘、元数据记录与读取。
type FileService struct {
	db       *gorm.DB
	dir      string
	maxBytes int64
}

func NewFileService(db *gorm.DB, dir string, maxMB int) (*FileService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileService{db: db, dir: dir, maxBytes: int64(maxMB) << 20}, nil
}

// MaxBytes is the largest accepted upload.
func (s *FileService) MaxBytes() int64 { return s.maxBytes }

// UploadResult is the JSON body returned for a stored upload.
type UploadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
}

// StoredFile describes a file ready to be served.
type StoredFile struct {
	Path         string
	OriginalName string
	ContentType  string
	Size         int64
}

// FileKind maps a file name to the coarse type clients use to pick a preview.
func FileKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	case ".mp4", ".webm", ".mov", ".avi":
		return "video"
	case ".mp3", ".wav", ".ogg":
		return "audio"
	case ".pdf", ".doc", ".docx", ".txt":
		return "document"
	}
	return "file"
}

// Save stores body under a generated name that keeps the original extension.
// size is the length announced by the client; the copy is still capped so a
// lying client cannot exceed the limit.
func (s *FileService) Save(ctx context.Context, originalName string, size int64, body io.Reader) (*UploadResult, error) {
	if size == 0 {
		return nil, ErrFileEmpty
	}
	if size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	stored := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.dir, stored)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", stored, err)
	}
	n, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", stored, err)
	case n == 0:
		_ = os.Remove(path)
		return nil, ErrFileEmpty
	case n > s.maxBytes:
		_ = os.Remove(path)
		return nil, ErrFileTooLarge
	}

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectFile(path); err == nil {
		contentType = m.String()
	}
	kind := FileKind(originalName)
	rec := models.File{
		StoredName:   stored,
		OriginalName: filepath.Base(originalName),
		Size:         n,
		Kind:         kind,
		ContentType:  contentType,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("record %s: %w", stored, err)
	}
	metrics.UploadsTotal.WithLabelValues(kind).Inc()
	log.Info().Str("file", stored).Str("type", kind).Int64("size", n).Msg("file stored")
	return &UploadResult{Success: true, Filename: stored, URL: FileURLPrefix + stored, Type: kind, Size: n}, nil
}

// Open resolves a stored name for download.
func (s *FileService) Open(ctx context.Context, stored string) (*StoredFile, error) {
	if !validStoredName(stored) {
		return nil, ErrInvalidName
	}
	path := filepath.Join(s.dir, stored)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, ErrFileNotFound
	}

	out := &StoredFile{Path: path, OriginalName: stored, Size: fi.Size()}
	var rec models.File
	err = s.db.WithContext(ctx).Where("stored_name = ?", stored).First(&rec).Error
	switch {
	case err == nil:
		out.OriginalName = rec.OriginalName
		out.ContentType = rec.ContentType
	case errors.Is(err, gorm.ErrRecordNotFound):
		// On disk but never recorded: serve it under its stored name.
	default:
		return nil, err
	}
	if out.ContentType == "" {
		out.ContentType = "application/octet-stream"
		if m, err := mimetype.DetectFile(path); err == nil {
			out.ContentType = m.String()
		}
	}
	return out, nil
}

func validStoredName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
