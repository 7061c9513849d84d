package service

import (
	"context"
	"io"
	"os"

	"github.com/PaulBabatuyi/filesync/internal/models"
)

// BlobStore is the physical side of a file: bytes under a stored name.
type BlobStore interface {
	AllocateName(originalName string) string
	Path(storedName string) string
	WriteBlob(ctx context.Context, storedName string, r io.Reader) (int64, error)
	DeleteBlob(storedName string) error
	OpenForRead(storedName string) (*os.File, error)
}

// MetadataStore is the durable side of a file: one record per blob.
type MetadataStore interface {
	InsertFileRecord(ctx context.Context, rec models.FileRecord) (*models.FileRecord, error)
	ListFiles(ctx context.Context) ([]models.FileListing, error)
	GetFileRecord(ctx context.Context, id int64) (*models.FileRecord, error)
	DeleteFileRecord(ctx context.Context, id int64) error
}

type UserStore interface {
	InsertUser(ctx context.Context, username, secretHash string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encodedHash string) (bool, error)
}

// Thumbnailer renders a resized JPEG of an image read from r.
type Thumbnailer interface {
	Thumbnail(r io.Reader, width int, w io.Writer) error
}
