package service

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PaulBabatuyi/filesync/internal/models"
)

const (
	minCredentialLen = 3
	maxOriginalName  = 255
)

// CleanOriginalName reduces a client-supplied filename to a display-safe base
// name. Directory parts (either slash style) and control characters are dropped.
func CleanOriginalName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return "", models.Validationf("file name required")
	}
	if len(name) > maxOriginalName {
		return "", models.Validationf("file name longer than %d bytes", maxOriginalName)
	}
	return name, nil
}

// ValidateCredentials enforces presence and minimum length of both fields.
func ValidateCredentials(username, password string) error {
	if username == "" || password == "" {
		return models.Validationf("username and password required")
	}
	if utf8.RuneCountInString(username) < minCredentialLen || utf8.RuneCountInString(password) < minCredentialLen {
		return models.Validationf("username and password must be at least %d characters", minCredentialLen)
	}
	return nil
}

// sniffImage reads the magic bytes of r and checks they describe an image.
// r is rewound afterwards.
func sniffImage(r io.ReadSeeker) error {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(r, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: read magic bytes: %v", models.ErrStorage, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind: %v", models.ErrStorage, err)
	}

	actualType := http.DetectContentType(buffer[:n])
	if !strings.HasPrefix(actualType, "image/") {
		return models.Validationf("content type mismatch: detected %s", actualType)
	}
	return nil
}
