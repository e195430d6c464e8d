// Package blobstore stores practice documents such as prescription PDFs and
// registry exports. It defines the Store interface, an in-memory store used
// by the sandbox backend, a directory store used for client downloads, and
// Echo handlers that serve stored documents.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// Categories of stored documents.
const (
	CategoryPrescription = "prescription"
	CategoryExport       = "export"
	CategoryOther        = "other"
)

// AllowedContentTypes lists the document types the practice produces.
var AllowedContentTypes = map[string]bool{
	"application/pdf":          true,
	"application/octet-stream": true,
	"application/json":         true,
	"text/csv":                 true,
	"text/plain":               true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored document.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	PatientID   string    `json:"patientId,omitempty"`
	VisitID     string    `json:"visitId,omitempty"`
	Category    string    `json:"category"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (m *BlobMetadata) validate() error {
	if strings.TrimSpace(m.FileName) == "" {
		return ErrMissingFileName
	}
	if m.ContentType == "" {
		m.ContentType = contentTypeFor(m.FileName)
	}
	ct, _, _ := mime.ParseMediaType(m.ContentType)
	if !AllowedContentTypes[ct] {
		return fmt.Errorf("%w: %q", ErrInvalidContentType, m.ContentType)
	}
	if m.Category == "" {
		m.Category = CategoryOther
	}
	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is the contract for document storage backends.
type Store interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob)}
}

// Upload stores content under meta.ID, or under a new id when meta.ID is
// empty. An existing blob with the same id is replaced.
func (s *MemoryStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[id]
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

// ---------------------------------------------------------------------------
// Directory implementation
// ---------------------------------------------------------------------------

// DirStore keeps each blob as a file in one directory. The id of a blob is
// its file name, so saved downloads keep the name the user expects.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Dir() string { return s.dir }

// path rejects ids that would escape the directory.
func (s *DirStore) path(id string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + id))
	if name == "/" || name == "." || name != id {
		return "", fmt.Errorf("invalid file name %q", id)
	}
	return filepath.Join(s.dir, name), nil
}

// Upload writes to a temporary file and renames it into place, so a failed
// transfer never leaves a partial document under the final name.
func (s *DirStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if meta.ID == "" {
		meta.ID = filepath.Base(meta.FileName)
	}
	dst, err := s.path(meta.ID)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var h hash.Hash = sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(ctxReader{ctx, content}, MaxFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", meta.ID, err)
	}
	if n > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("saving %s: %w", meta.ID, err)
	}

	meta.Size = n
	meta.Hash = fmt.Sprintf("%x", h.Sum(nil))
	meta.CreatedAt = time.Now().UTC()
	return &meta, nil
}

func (s *DirStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(context.Background(), id)
	if err != nil {
		return nil, nil, err
	}
	p, _ := s.path(id)
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", id, err)
	}
	return f, meta, nil
}

func (s *DirStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return err
	}
	return nil
}

func (s *DirStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &BlobMetadata{
		ID:          id,
		FileName:    id,
		ContentType: contentTypeFor(id),
		Size:        info.Size(),
		Category:    CategoryOther,
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// BlobHandler serves stored documents over HTTP.
type BlobHandler struct {
	store Store
}

func NewBlobHandler(store Store) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts document routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/documents/:id/metadata", h.handleGetMetadata)
	g.GET("/documents/:id", h.handleDownload)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	return Serve(c, h.store, c.Param("id"))
}

// Serve writes the blob as an attachment named after its file name.
func Serve(c echo.Context, store Store, id string) error {
	rc, meta, err := store.Download(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": meta.FileName}))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func httpError(err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to read document")
}
