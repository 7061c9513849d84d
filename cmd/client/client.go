package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type UploadedFile struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"original_name"`
	FileSize     int64  `json:"file_size"`
	UploadDate   string `json:"upload_date"`
}

type FileEntry struct {
	ID             int64   `json:"id"`
	Filename       string  `json:"filename"`
	OriginalName   string  `json:"original_name"`
	FileSize       int64   `json:"file_size"`
	FileType       string  `json:"file_type"`
	UploadedBy     *int64  `json:"uploaded_by"`
	UploadDate     string  `json:"upload_date"`
	UploadedByName *string `json:"uploaded_by_name"`
}

// APIError is a {success:false} response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Message string        `json:"message"`
	User    *User         `json:"user"`
	File    *UploadedFile `json:"file"`
	Files   []FileEntry   `json:"files"`
}

// FileClient talks to the file sync HTTP API.
type FileClient struct {
	baseURL  string
	http     *http.Client
	progress func(done, total int64)
}

func NewFileClient(baseURL string, timeout time.Duration) *FileClient {
	return &FileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (fc *FileClient) Login(ctx context.Context, username, password string) (*User, error) {
	return fc.credentials(ctx, "/api/login", username, password)
}

func (fc *FileClient) Register(ctx context.Context, username, password string) (*User, error) {
	return fc.credentials(ctx, "/api/register", username, password)
}

func (fc *FileClient) credentials(ctx context.Context, path, username, password string) (*User, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fc.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := fc.doJSON(req)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, errors.New("response missing user")
	}
	return env.User, nil
}

// UploadFile streams a file to the server as multipart without buffering it
// in memory.
func (fc *FileClient) UploadFile(ctx context.Context, filePath string, userID int64) (*UploadedFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		err := writeUploadForm(mw, file, filepath.Base(filePath), userID, fileInfo.Size(), fc.progress)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	defer func() {
		pr.Close()
		<-written
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fc.baseURL+"/api/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	env, err := fc.doJSON(req)
	if err != nil {
		return nil, err
	}
	if env.File == nil {
		return nil, errors.New("response missing file")
	}
	return env.File, nil
}

func writeUploadForm(mw *multipart.Writer, r io.Reader, name string, userID, size int64, progress func(int64, int64)) error {
	if err := mw.WriteField("uploadedBy", strconv.FormatInt(userID, 10)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	var dst io.Writer = part
	if progress != nil {
		dst = &progressWriter{w: part, total: size, report: progress}
	}
	_, err = io.Copy(dst, r)
	return err
}

func (fc *FileClient) ListFiles(ctx context.Context) ([]FileEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fc.baseURL+"/api/files", nil)
	if err != nil {
		return nil, err
	}
	env, err := fc.doJSON(req)
	if err != nil {
		return nil, err
	}
	return env.Files, nil
}

// DownloadFile saves a file to outputPath. When outputPath is a directory the
// file is named as the server suggests. It returns the path written.
func (fc *FileClient) DownloadFile(ctx context.Context, fileID int64, outputPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/download/%d", fc.baseURL, fileID), nil)
	if err != nil {
		return "", err
	}
	resp, err := fc.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	target := outputPath
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		name := fmt.Sprintf("file-%d", fileID)
		if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
			name = filepath.Base(params["filename"])
		}
		target = filepath.Join(outputPath, name)
	}

	outFile, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	var dst io.Writer = outFile
	if fc.progress != nil {
		dst = &progressWriter{w: outFile, total: resp.ContentLength, report: fc.progress}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return target, outFile.Sync()
}

func (fc *FileClient) DeleteFile(ctx context.Context, fileID, userID int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/files/%d", fc.baseURL, fileID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	_, err = fc.doJSON(req)
	return err
}

// PreviewFile saves a JPEG preview of an image file.
func (fc *FileClient) PreviewFile(ctx context.Context, fileID int64, width int, outputPath string) error {
	u := fmt.Sprintf("%s/api/files/%d/preview", fc.baseURL, fileID)
	if width > 0 {
		u += "?" + url.Values{"w": {strconv.Itoa(width)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := fc.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func (fc *FileClient) doJSON(req *http.Request) (*envelope, error) {
	resp, err := fc.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	return &env, nil
}

func decodeAPIError(resp *http.Response) error {
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&env); err != nil || env.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{Status: resp.StatusCode, Message: env.Error}
}

type progressWriter struct {
	w      io.Writer
	done   int64
	total  int64
	report func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	p.report(p.done, p.total)
	return n, err
}
