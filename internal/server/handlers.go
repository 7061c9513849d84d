package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/middleware"
	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/PaulBabatuyi/filesync/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" form:"password" binding:"required,min=3,max=256"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "File sync backend running",
		"endpoints": gin.H{
			"auth": []string{"POST /api/login", "POST /api/register"},
			"files": []string{
				"GET /api/files",
				"POST /api/upload",
				"GET /api/download/:id",
				"DELETE /api/files/:id",
				"GET /api/files/:id/preview",
			},
			"health": "GET /health",
		},
		"timestamp": formatTime(time.Now()),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"message":   "server running",
		"timestamp": formatTime(time.Now()),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.config.Checks))
	ready := true
	for name, p := range s.config.Checks {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	u, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respServiceError(c, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userJSON{ID: u.ID, Username: u.Username}})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		respError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	u, err := s.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respServiceError(c, err, "registration failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userJSON{ID: u.ID, Username: u.Username}})
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respServiceError(c, fmt.Errorf("%w: file exceeds the %d byte limit", models.ErrTooLarge, tooLarge.Limit),
				"upload rejected")
		case errors.Is(err, http.ErrMissingFile):
			respError(c, http.StatusBadRequest, "no file uploaded")
		default:
			respError(c, http.StatusBadRequest, "malformed multipart form")
		}
		return
	}

	uploaderID, ok := uploaderFrom(c)
	if !ok {
		respError(c, http.StatusBadRequest, "uploader id required")
		return
	}

	content, err := fh.Open()
	if err != nil {
		s.logger.Error("open multipart part", zap.Error(err))
		respError(c, http.StatusInternalServerError, "failed to read upload")
		return
	}
	defer content.Close()

	rec, err := s.files.Upload(c.Request.Context(), service.UploadInput{
		UploaderID:   uploaderID,
		OriginalName: fh.Filename,
		Content:      content,
	})
	if err != nil {
		respServiceError(c, err, "failed to save file")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "file": uploadedFileJSON{
		ID:           rec.ID,
		OriginalName: rec.OriginalName,
		FileSize:     rec.Size,
		UploadDate:   formatTime(rec.UploadedAt),
	}})
}

// uploaderFrom reads the uploadedBy form field, falling back to X-User-ID.
func uploaderFrom(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.PostForm("uploadedBy"))
	if raw == "" {
		id := middleware.CallerID(c)
		return id, id > 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListFiles(c *gin.Context) {
	files, err := s.files.List(c.Request.Context())
	if err != nil {
		respServiceError(c, err, "failed to list files")
		return
	}

	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, toFileJSON(f))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": out})
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := fileIDParam(c)
	if !ok {
		return
	}

	dl, err := s.files.Download(c.Request.Context(), id)
	if err != nil {
		respServiceError(c, err, "failed to read file")
		return
	}
	defer dl.Content.Close()

	modTime := dl.Record.UploadedAt
	if info, err := dl.Content.Stat(); err == nil {
		modTime = info.ModTime()
	}

	name := dl.Record.OriginalName
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(c.Writer, c.Request, name, modTime, dl.Content)
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	id, ok := fileIDParam(c)
	if !ok {
		return
	}

	caller := middleware.CallerID(c)
	if caller > 0 {
		if _, err := s.auth.Identify(c.Request.Context(), caller); err != nil {
			respServiceError(c, err, "failed to delete file")
			return
		}
	}

	if err := s.files.Delete(c.Request.Context(), caller, id); err != nil {
		respServiceError(c, err, "failed to delete file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted"})
}

func (s *Server) handlePreview(c *gin.Context) {
	id, ok := fileIDParam(c)
	if !ok {
		return
	}

	width := 0
	if raw := c.Query("w"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w <= 0 {
			respError(c, http.StatusBadRequest, "w must be a positive integer")
			return
		}
		width = w
	}

	img, err := s.files.Preview(c.Request.Context(), id, width)
	if err != nil {
		respServiceError(c, err, "failed to render preview")
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/jpeg", img)
}

func fileIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("fileId"), 10, 64)
	if err != nil || id <= 0 {
		respError(c, http.StatusBadRequest, "invalid file id")
		return 0, false
	}
	return id, true
}
