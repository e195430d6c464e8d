package download

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/notify"
)

type fakeSource struct {
	files map[string]string
	err   error
	paths []string
}

func (f *fakeSource) Download(_ context.Context, path string) (*datasource.File, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.files[path]
	if !ok {
		return nil, &datasource.Error{Kind: datasource.NotFound, Message: "no prescription"}
	}
	return &datasource.File{Name: "server.pdf", ContentType: "application/pdf", Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestDownloadAsFile_SavesUnderHint(t *testing.T) {
	src := &fakeSource{files: map[string]string{"/visits/V-3/prescription/pdf": "%PDF-rx"}}
	store := blobstore.NewMemoryStore()
	rec := &notify.Recorder{}
	tr := New(src, store, PrescriptionPath, rec, zerolog.Nop())

	tr.DownloadAsFile(context.Background(), "V-3", PrescriptionFilename("V-3"))
	tr.Wait()

	rc, meta, err := store.Download(context.Background(), "prescription_V-3.pdf")
	if err != nil {
		t.Fatalf("expected saved file, got %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "%PDF-rx" || meta.ContentType != "application/pdf" {
		t.Errorf("unexpected saved file %q %+v", b, meta)
	}

	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0].Severity != notify.Success || !strings.Contains(msgs[0].Text, "prescription_V-3.pdf") {
		t.Errorf("unexpected notifications %+v", msgs)
	}
}

func TestDownloadAsFile_FallsBackToServerName(t *testing.T) {
	src := &fakeSource{files: map[string]string{"/visits/V-4/prescription/pdf": "x"}}
	store := blobstore.NewMemoryStore()
	tr := New(src, store, PrescriptionPath, &notify.Recorder{}, zerolog.Nop())

	tr.DownloadAsFile(context.Background(), "V-4", "")
	tr.Wait()

	if _, err := store.GetMetadata(context.Background(), "server.pdf"); err != nil {
		t.Errorf("expected file saved under server name, got %v", err)
	}
}

func TestDownloadAsFile_FailureGoesToNotifier(t *testing.T) {
	src := &fakeSource{err: &datasource.Error{Kind: datasource.Server, Message: "Server error. Please try again later", Err: errors.New("502")}}
	rec := &notify.Recorder{}
	tr := New(src, blobstore.NewMemoryStore(), PrescriptionPath, rec, zerolog.Nop())

	tr.DownloadAsFile(context.Background(), "V-5", PrescriptionFilename("V-5"))
	tr.Wait()

	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0].Severity != notify.Error {
		t.Fatalf("expected one error notification, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Text, "Server error. Please try again later") {
		t.Errorf("expected user message in notification, got %q", msgs[0].Text)
	}
}

func TestPrescriptionNaming(t *testing.T) {
	if got := PrescriptionPath("V-9"); got != "/visits/V-9/prescription/pdf" {
		t.Errorf("unexpected path %q", got)
	}
	if got := PrescriptionFilename("V-9"); got != "prescription_V-9.pdf" {
		t.Errorf("unexpected filename %q", got)
	}
}
