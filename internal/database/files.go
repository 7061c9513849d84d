package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/PaulBabatuyi/filesync/internal/models"
	"go.uber.org/zap"
)

var fileColumns = []string{
	"f.id", "f.filename", "f.original_name", "f.file_path", "f.file_size", "f.uploaded_by", "f.upload_date",
}

// InsertFileRecord persists rec and returns it with ID set. A zero UploadedAt
// is replaced by the current time. An uploader id with no user row yields
// models.ErrUnknownUploader.
func (p *DB) InsertFileRecord(ctx context.Context, rec models.FileRecord) (*models.FileRecord, error) {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}

	query, args, err := p.qb().Insert("files").
		Columns("filename", "original_name", "file_path", "file_size", "uploaded_by", "upload_date").
		Values(rec.StoredName, rec.OriginalName, rec.StoragePath, rec.Size, rec.UploaderID, rec.UploadedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, queryErr("build insert file", err)
	}

	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID); err != nil {
		if isForeignKeyViolation(err) {
			return nil, models.ErrUnknownUploader
		}
		return nil, queryErr("insert file", err)
	}
	p.logger.Debug("file record inserted",
		zap.Int64("file_id", rec.ID),
		zap.String("stored_name", rec.StoredName),
		zap.Int64("size", rec.Size),
	)
	return &rec, nil
}

// ListFiles returns every record, newest first, with the uploader's name when
// the uploader still resolves.
func (p *DB) ListFiles(ctx context.Context) ([]models.FileListing, error) {
	query, args, err := p.qb().Select(append(fileColumns, "u.username")...).
		From("files f").
		LeftJoin("users u ON f.uploaded_by = u.id").
		OrderBy("f.upload_date DESC", "f.id DESC").
		ToSql()
	if err != nil {
		return nil, queryErr("build list files", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryErr("list files", err)
	}
	defer rows.Close()

	files := make([]models.FileListing, 0)
	for rows.Next() {
		var (
			f        models.FileListing
			uploader sql.NullInt64
			name     sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.StoredName, &f.OriginalName, &f.StoragePath, &f.Size,
			&uploader, &f.UploadedAt, &name); err != nil {
			return nil, queryErr("scan file", err)
		}
		if uploader.Valid {
			f.UploaderID = &uploader.Int64
		}
		if name.Valid {
			f.UploaderName = &name.String
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("iterate files", err)
	}
	return files, nil
}

func (p *DB) GetFileRecord(ctx context.Context, id int64) (*models.FileRecord, error) {
	query, args, err := p.qb().Select(fileColumns...).
		From("files f").
		Where(sq.Eq{"f.id": id}).
		ToSql()
	if err != nil {
		return nil, queryErr("build get file", err)
	}

	var (
		rec      models.FileRecord
		uploader sql.NullInt64
	)
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.StoredName, &rec.OriginalName,
		&rec.StoragePath, &rec.Size, &uploader, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, queryErr("get file", err)
	}
	if uploader.Valid {
		rec.UploaderID = &uploader.Int64
	}
	return &rec, nil
}

// DeleteFileRecord removes a record. Deleting a missing row succeeds.
func (p *DB) DeleteFileRecord(ctx context.Context, id int64) error {
	query, args, err := p.qb().Delete("files").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return queryErr("build delete file", err)
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return queryErr("delete file", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.logger.Debug("file record already absent", zap.Int64("file_id", id))
	}
	return nil
}

// StoredNames returns the set of stored filenames that have a record.
func (p *DB) StoredNames(ctx context.Context) (map[string]struct{}, error) {
	query, args, err := p.qb().Select("filename").From("files").ToSql()
	if err != nil {
		return nil, queryErr("build stored names", err)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryErr("stored names", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, queryErr("scan stored name", err)
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("iterate stored names", err)
	}
	return names, nil
}
