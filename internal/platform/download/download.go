// Package download saves server documents as local files. Downloads run in
// the background; their outcome is reported to a notify.Sink and never
// returned to the caller.
package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/notify"
)

// Source fetches a document by API path.
type Source interface {
	Download(ctx context.Context, path string) (*datasource.File, error)
}

// PathFunc maps a resource id to the API path of its document.
type PathFunc func(resourceID string) string

// PrescriptionPath is the path of a visit's prescription PDF.
func PrescriptionPath(visitID string) string {
	return datasource.Visits.Path(visitID, "prescription", "pdf")
}

// PrescriptionFilename is the name a prescription is saved under.
func PrescriptionFilename(visitID string) string {
	return fmt.Sprintf("prescription_%s.pdf", visitID)
}

type Trigger struct {
	src    Source
	store  blobstore.Store
	path   PathFunc
	sink   notify.Sink
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func New(src Source, store blobstore.Store, path PathFunc, sink notify.Sink, logger zerolog.Logger) *Trigger {
	return &Trigger{
		src:    src,
		store:  store,
		path:   path,
		sink:   sink,
		logger: logger.With().Str("component", "download").Logger(),
	}
}

// DownloadAsFile starts saving the resource's document and returns at once.
// filenameHint names the file; when empty, the server's name is used.
func (t *Trigger) DownloadAsFile(ctx context.Context, resourceID, filenameHint string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		name, err := t.save(ctx, resourceID, filenameHint)
		if err != nil {
			t.logger.Error().Err(err).Str("resource_id", resourceID).Msg("download failed")
			t.sink.Notify("Failed to download file: "+datasource.UserMessage(err), notify.Error)
			return
		}
		t.logger.Info().Str("resource_id", resourceID).Str("file", name).Msg("download saved")
		t.sink.Notify("Downloaded "+name, notify.Success)
	}()
}

// Wait blocks until every started download has finished.
func (t *Trigger) Wait() { t.wg.Wait() }

func (t *Trigger) save(ctx context.Context, resourceID, hint string) (string, error) {
	if strings.TrimSpace(resourceID) == "" {
		return "", fmt.Errorf("resource id is required")
	}
	f, err := t.src.Download(ctx, t.path(resourceID))
	if err != nil {
		return "", err
	}
	defer f.Body.Close()

	name := filepath.Base(strings.TrimSpace(hint))
	if name == "" || name == "." || name == "/" {
		name = filepath.Base(f.Name)
	}
	if name == "" || name == "." || name == "/" {
		name = resourceID
	}

	meta, err := t.store.Upload(ctx, blobstore.BlobMetadata{
		ID:          name,
		FileName:    name,
		ContentType: f.ContentType,
		Category:    blobstore.CategoryPrescription,
	}, f.Body)
	if err != nil {
		return "", err
	}
	return meta.FileName, nil
}
