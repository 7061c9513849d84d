package models

import (
	"path/filepath"
	"strings"
	"time"
)

// User is a registered account. SecretHash holds an argon2id encoded hash.
type User struct {
	ID         int64
	Username   string
	SecretHash string
	CreatedAt  time.Time
}

// FileRecord is the metadata row for one uploaded blob.
type FileRecord struct {
	ID           int64
	StoredName   string
	OriginalName string
	StoragePath  string
	Size         int64
	UploaderID   *int64 // nil once the uploader row is gone
	UploadedAt   time.Time
}

// OwnedBy reports whether userID uploaded the file.
func (f *FileRecord) OwnedBy(userID int64) bool {
	return f.UploaderID != nil && *f.UploaderID == userID
}

// FileListing is a FileRecord joined with its uploader's username.
type FileListing struct {
	FileRecord
	UploaderName *string
}

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

var extTypes = map[string]FileType{
	".jpg":  FileTypeImage,
	".jpeg": FileTypeImage,
	".png":  FileTypeImage,
	".gif":  FileTypeImage,
	".bmp":  FileTypeImage,
	".tif":  FileTypeImage,
	".tiff": FileTypeImage,
	".mp4":  FileTypeVideo,
	".mov":  FileTypeVideo,
	".webm": FileTypeVideo,
	".mp3":  FileTypeAudio,
	".wav":  FileTypeAudio,
	".ogg":  FileTypeAudio,
	".pdf":  FileTypeDocument,
	".doc":  FileTypeDocument,
	".docx": FileTypeDocument,
	".txt":  FileTypeDocument,
}

// DeriveFileType classifies a file by the extension of its name.
func DeriveFileType(name string) FileType {
	if t, ok := extTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return FileTypeOther
}
