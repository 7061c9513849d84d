package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// In-flight writes live at "." + storedName + partialSuffix. Stored names
// never start with a dot, so a partial can never collide with a blob.
const (
	partialPrefix = "."
	partialSuffix = ".partial"
)

// BlobInfo describes one file found under the root. Partial marks a write
// that never completed; Name is then the on-disk temp name.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	Partial bool
}

// FilesystemStorage stores blobs as flat files under one root directory.
type FilesystemStorage struct {
	basePath string // e.g., "./uploads"
	logger   *zap.Logger
	writeSem *semaphore.Weighted // nil means unlimited
}

type Option func(*FilesystemStorage)

// WithMaxConcurrentWrites caps simultaneous WriteBlob calls. n <= 0 disables the cap.
func WithMaxConcurrentWrites(n int64) Option {
	return func(fs *FilesystemStorage) {
		if n > 0 {
			fs.writeSem = semaphore.NewWeighted(n)
		}
	}
}

func NewFilesystemStorage(basePath string, logger *zap.Logger, opts ...Option) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", basePath, err)
	}
	fs := &FilesystemStorage{basePath: basePath, logger: logger}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FilesystemStorage) Root() string { return fs.basePath }

// Path returns the on-disk location of a stored name. It does not check existence.
func (fs *FilesystemStorage) Path(storedName string) string {
	return filepath.Join(fs.basePath, storedName)
}

// AllocateName returns a fresh stored name: millisecond timestamp, random
// suffix, and the original extension.
func (fs *FilesystemStorage) AllocateName(originalName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), suffix, safeExt(originalName))
}

// WriteBlob streams r into the blob named storedName and returns the bytes
// written. The data lands in a temp file first and is renamed into place only
// after a successful fsync, so a failed write never leaves a partial blob.
func (fs *FilesystemStorage) WriteBlob(ctx context.Context, storedName string, r io.Reader) (int64, error) {
	if err := checkName(storedName); err != nil {
		return 0, err
	}
	if fs.writeSem != nil {
		if err := fs.writeSem.Acquire(ctx, 1); err != nil {
			return 0, fmt.Errorf("%w: waiting for write slot: %v", models.ErrStorage, err)
		}
		defer fs.writeSem.Release(1)
	}

	fullPath := fs.Path(storedName)
	tmpPath := fs.Path(partialPrefix + storedName + partialSuffix)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", models.ErrStorage, storedName, err)
	}

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, fullPath)
	}
	if err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			fs.logger.Warn("failed to remove temp blob", zap.String("path", tmpPath), zap.Error(rmErr))
		}
		return 0, fmt.Errorf("%w: write %s: %v", models.ErrStorage, storedName, err)
	}
	return size, nil
}

// DeleteBlob removes a blob. A missing blob is not an error.
func (fs *FilesystemStorage) DeleteBlob(storedName string) error {
	if err := checkName(storedName); err != nil {
		return err
	}
	err := os.Remove(fs.Path(storedName))
	if errors.Is(err, os.ErrNotExist) {
		fs.logger.Debug("blob already absent", zap.String("stored_name", storedName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrStorage, storedName, err)
	}
	return nil
}

func (fs *FilesystemStorage) Exists(storedName string) bool {
	if checkName(storedName) != nil {
		return false
	}
	info, err := os.Stat(fs.Path(storedName))
	return err == nil && info.Mode().IsRegular()
}

// OpenForRead opens a blob. The caller must close the file.
func (fs *FilesystemStorage) OpenForRead(storedName string) (*os.File, error) {
	if err := checkName(storedName); err != nil {
		return nil, err
	}
	f, err := os.Open(fs.Path(storedName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, models.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrStorage, storedName, err)
	}
	return f, nil
}

// ListBlobs returns every regular file under the root. Leftovers of
// interrupted writes are included with Partial set.
func (fs *FilesystemStorage) ListBlobs() ([]BlobInfo, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read root: %v", models.ErrStorage, err)
	}
	blobs := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue // deleted between ReadDir and Info
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", models.ErrStorage, e.Name(), err)
		}
		blobs = append(blobs, BlobInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Partial: isPartial(e.Name()),
		})
	}
	return blobs, nil
}

// Ping checks that the root still exists and is a directory.
func (fs *FilesystemStorage) Ping(context.Context) error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("%w: stat root: %v", models.ErrStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root %s is not a directory", models.ErrStorage, fs.basePath)
	}
	return nil
}

// checkName rejects names that could resolve outside the root.
func checkName(storedName string) error {
	if storedName == "" || storedName != filepath.Base(storedName) || storedName == "." || storedName == ".." {
		return fmt.Errorf("%w: invalid stored name %q", models.ErrStorage, storedName)
	}
	return nil
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, partialPrefix) && strings.HasSuffix(name, partialSuffix)
}

func safeExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
