package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// categories maps each error category to its status. Order matters: the
// first match wins.
var categories = []struct {
	err    error
	status int
}{
	{models.ErrValidation, http.StatusBadRequest},
	{models.ErrDuplicate, http.StatusBadRequest},
	{models.ErrAuth, http.StatusUnauthorized},
	{models.ErrForbidden, http.StatusForbidden},
	{models.ErrNotFound, http.StatusNotFound},
	{models.ErrTooLarge, http.StatusRequestEntityTooLarge},
}

type userJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type uploadedFileJSON struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"original_name"`
	FileSize     int64  `json:"file_size"`
	UploadDate   string `json:"upload_date"`
}

type fileJSON struct {
	ID             int64   `json:"id"`
	Filename       string  `json:"filename"`
	OriginalName   string  `json:"original_name"`
	FilePath       string  `json:"file_path"`
	FileSize       int64   `json:"file_size"`
	FileType       string  `json:"file_type"`
	UploadedBy     *int64  `json:"uploaded_by"`
	UploadDate     string  `json:"upload_date"`
	UploadedByName *string `json:"uploaded_by_name"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toFileJSON(f models.FileListing) fileJSON {
	return fileJSON{
		ID:             f.ID,
		Filename:       f.StoredName,
		OriginalName:   f.OriginalName,
		FilePath:       f.StoragePath,
		FileSize:       f.Size,
		FileType:       string(models.DeriveFileType(f.OriginalName)),
		UploadedBy:     f.UploaderID,
		UploadDate:     formatTime(f.UploadedAt),
		UploadedByName: f.UploaderName,
	}
}

func respError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// respServiceError maps err to a status and a caller-facing message. Client
// errors carry their own detail; server errors are logged by the service and
// answered with fallback so internals never leak.
func respServiceError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	for _, cat := range categories {
		if errors.Is(err, cat.err) {
			respError(c, cat.status, detail(err, cat.err))
			return
		}
	}
	respError(c, http.StatusInternalServerError, fallback)
}

// detail strips wrapping prefixes up to and including the category, so
// "save metadata: validation error: unknown uploader" becomes "unknown uploader".
func detail(err, category error) string {
	msg := err.Error()
	prefix := category.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	if i := strings.LastIndex(msg, category.Error()); i >= 0 {
		return msg[i:]
	}
	return msg
}

// bindingMessage turns validator errors from gin binding into one sentence.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			return "username and password required"
		case "min":
			return "username and password must be at least " + fe.Param() + " characters"
		case "max":
			return strings.ToLower(fe.Field()) + " must be at most " + fe.Param() + " characters"
		}
	}
	return "invalid request body"
}
