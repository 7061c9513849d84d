package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/PaulBabatuyi/filesync/internal/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	defaultPreviewWidth = 400
	minPreviewWidth     = 16
	maxPreviewWidth     = 1600
)

// FileService coordinates blobs and their metadata records. Every operation
// writes the blob before the record and removes the blob before the record,
// so a failure can leave an orphan blob but never a record without a blob.
type FileService struct {
	storage  BlobStore
	database MetadataStore
	logger   *zap.Logger

	tracer               trace.Tracer
	metrics              *observability.Metrics
	thumbnailer          Thumbnailer
	previews             *expirable.LRU[previewKey, []byte]
	allowAnonymousDelete bool

	// previewGen is bumped by every delete; a render started under an older
	// generation is not cached.
	previewMu  sync.Mutex
	previewGen uint64
}

type previewKey struct {
	id    int64
	width int
}

type Option func(*FileService)

func WithTracer(t trace.Tracer) Option { return func(s *FileService) { s.tracer = t } }

func WithMetrics(m *observability.Metrics) Option { return func(s *FileService) { s.metrics = m } }

func WithThumbnailer(t Thumbnailer) Option { return func(s *FileService) { s.thumbnailer = t } }

// WithPreviewCache keeps up to size rendered previews for ttl. size <= 0
// disables caching.
func WithPreviewCache(size int, ttl time.Duration) Option {
	return func(s *FileService) {
		if size > 0 {
			s.previews = expirable.NewLRU[previewKey, []byte](size, nil, ttl)
		}
	}
}

// WithAnonymousDelete turns off the owner check on Delete.
func WithAnonymousDelete(allow bool) Option {
	return func(s *FileService) { s.allowAnonymousDelete = allow }
}

func NewFileService(storage BlobStore, db MetadataStore, logger *zap.Logger, opts ...Option) *FileService {
	s := &FileService{
		storage:  storage,
		database: db,
		logger:   logger,
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadInput struct {
	UploaderID   int64
	OriginalName string
	Content      io.Reader
}

// Upload writes the blob, then its record. If the record cannot be saved the
// blob is deleted again before the error is returned.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (rec *models.FileRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "FileService.Upload")
	defer func() { s.finish(span, "upload", err) }()

	if in.UploaderID <= 0 {
		return nil, models.Validationf("uploader id required")
	}
	if in.Content == nil {
		return nil, models.Validationf("no file uploaded")
	}
	originalName, err := CleanOriginalName(in.OriginalName)
	if err != nil {
		return nil, err
	}

	storedName := s.storage.AllocateName(originalName)
	span.SetAttributes(attribute.String("file.stored_name", storedName))

	size, err := s.storage.WriteBlob(ctx, storedName, in.Content)
	if err != nil {
		s.logger.Error("blob write failed", zap.String("stored_name", storedName), zap.Error(err))
		return nil, err
	}

	uploader := in.UploaderID
	rec, err = s.database.InsertFileRecord(ctx, models.FileRecord{
		StoredName:   storedName,
		OriginalName: originalName,
		StoragePath:  s.storage.Path(storedName),
		Size:         size,
		UploaderID:   &uploader,
	})
	if err != nil {
		s.logger.Error("metadata insert failed, removing blob",
			zap.String("stored_name", storedName),
			zap.Error(err),
		)
		if delErr := s.storage.DeleteBlob(storedName); delErr != nil {
			s.logger.Error("orphan blob left behind",
				zap.String("stored_name", storedName),
				zap.Int64("size", size),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("save metadata: %w", err)
	}

	s.logger.Info("file uploaded",
		zap.Int64("file_id", rec.ID),
		zap.String("stored_name", storedName),
		zap.String("original_name", originalName),
		zap.Int64("size", size),
		zap.Int64("uploaded_by", uploader),
	)
	return rec, nil
}

// List returns every file, newest first. It never returns a partial list.
func (s *FileService) List(ctx context.Context) (files []models.FileListing, err error) {
	ctx, span := s.tracer.Start(ctx, "FileService.List")
	defer func() { s.finish(span, "list", err) }()

	files, err = s.database.ListFiles(ctx)
	if err != nil {
		s.logger.Error("list files failed", zap.Error(err))
		return nil, fmt.Errorf("list files: %w", err)
	}
	span.SetAttributes(attribute.Int("file.count", len(files)))
	return files, nil
}

// Download is an open blob plus the record it belongs to. Close Content when done.
type Download struct {
	Record  *models.FileRecord
	Content *os.File
}

// Download resolves a record and opens its blob. A missing record yields
// models.ErrRecordNotFound; a record whose blob is gone yields
// models.ErrBlobNotFound.
func (s *FileService) Download(ctx context.Context, id int64) (dl *Download, err error) {
	ctx, span := s.tracer.Start(ctx, "FileService.Download", trace.WithAttributes(attribute.Int64("file.id", id)))
	defer func() { s.finish(span, "download", err) }()

	rec, content, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Download{Record: rec, Content: content}, nil
}

// Delete removes a file. The blob goes first on a best-effort basis; the
// record removal decides the outcome. Unless anonymous deletes are allowed,
// callerID must be the uploader. Files whose uploader no longer exists may be
// deleted by any identified caller.
func (s *FileService) Delete(ctx context.Context, callerID, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "FileService.Delete", trace.WithAttributes(attribute.Int64("file.id", id)))
	defer func() { s.finish(span, "delete", err) }()

	rec, err := s.database.GetFileRecord(ctx, id)
	if err != nil {
		return err
	}

	if !s.allowAnonymousDelete {
		if callerID <= 0 {
			return fmt.Errorf("%w: caller identity required", models.ErrAuth)
		}
		if rec.UploaderID != nil && !rec.OwnedBy(callerID) {
			s.logger.Warn("delete refused, caller is not the uploader",
				zap.Int64("file_id", id),
				zap.Int64("caller_id", callerID),
			)
			return fmt.Errorf("%w: only the uploader can delete this file", models.ErrForbidden)
		}
	}

	if err := s.storage.DeleteBlob(rec.StoredName); err != nil {
		s.logger.Warn("blob delete failed, removing record anyway",
			zap.Int64("file_id", id),
			zap.String("stored_name", rec.StoredName),
			zap.Error(err),
		)
	}

	if err := s.database.DeleteFileRecord(ctx, id); err != nil {
		s.logger.Error("metadata delete failed", zap.Int64("file_id", id), zap.Error(err))
		return fmt.Errorf("delete metadata: %w", err)
	}

	s.forgetPreviews(id)
	s.logger.Info("file deleted", zap.Int64("file_id", id), zap.String("stored_name", rec.StoredName))
	return nil
}

// Preview renders a JPEG of an image file scaled to width pixels. A width of
// zero selects the default; other values are clamped.
func (s *FileService) Preview(ctx context.Context, id int64, width int) (img []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "FileService.Preview", trace.WithAttributes(attribute.Int64("file.id", id)))
	defer func() { s.finish(span, "preview", err) }()

	if s.thumbnailer == nil {
		return nil, errors.New("previews are not configured")
	}

	key := previewKey{id: id, width: clampWidth(width)}
	gen := s.previewGeneration()
	if s.previews != nil {
		if img, ok := s.previews.Get(key); ok {
			span.SetAttributes(attribute.Bool("preview.cached", true))
			s.metrics.ObservePreviewCache(true)
			return img, nil
		}
		s.metrics.ObservePreviewCache(false)
	}

	rec, content, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer content.Close()

	if models.DeriveFileType(rec.OriginalName) != models.FileTypeImage {
		return nil, models.Validationf("file %d is not an image", id)
	}
	if err := sniffImage(content); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.thumbnailer.Thumbnail(content, key.width, &buf); err != nil {
		return nil, models.Validationf("cannot render preview: %v", err)
	}
	s.cachePreview(key, gen, buf.Bytes())
	return buf.Bytes(), nil
}

func (s *FileService) previewGeneration() uint64 {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	return s.previewGen
}

func (s *FileService) cachePreview(key previewKey, gen uint64, img []byte) {
	if s.previews == nil {
		return
	}
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	if gen != s.previewGen {
		return
	}
	s.previews.Add(key, img)
}

func (s *FileService) forgetPreviews(id int64) {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	s.previewGen++
	if s.previews == nil {
		return
	}
	for _, k := range s.previews.Keys() {
		if k.id == id {
			s.previews.Remove(k)
		}
	}
}

func (s *FileService) open(ctx context.Context, id int64) (*models.FileRecord, *os.File, error) {
	rec, err := s.database.GetFileRecord(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("file record not found", zap.Int64("file_id", id))
		}
		return nil, nil, err
	}

	content, err := s.storage.OpenForRead(rec.StoredName)
	if err != nil {
		if errors.Is(err, models.ErrBlobNotFound) {
			s.logger.Error("record without blob",
				zap.Int64("file_id", id),
				zap.String("stored_name", rec.StoredName),
			)
		}
		return nil, nil, err
	}
	return rec, content, nil
}

func (s *FileService) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.ObserveFileOp(op, err)
}

func clampWidth(w int) int {
	switch {
	case w == 0:
		return defaultPreviewWidth
	case w < minPreviewWidth:
		return minPreviewWidth
	case w > maxPreviewWidth:
		return maxPreviewWidth
	}
	return w
}
