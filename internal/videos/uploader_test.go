package videos

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/vidsplit/client/internal/testsupport"
)

func TestNewUploaderModes(t *testing.T) {
	f := newTestController(t, Options{})

	if u, err := NewUploader("", f.client, f.session); err != nil {
		t.Fatalf("default mode: %v", err)
	} else if _, ok := u.(*MultipartUploader); !ok {
		t.Fatalf("expected multipart uploader got %T", u)
	}
	if u, err := NewUploader("presigned", f.client, f.session); err != nil {
		t.Fatalf("presigned mode: %v", err)
	} else if _, ok := u.(*PresignedUploader); !ok {
		t.Fatalf("expected presigned uploader got %T", u)
	}
	if _, err := NewUploader("carrier-pigeon", f.client, f.session); err == nil {
		t.Fatal("expected unknown mode to fail")
	}
}

func TestMultipartUploaderFromDisk(t *testing.T) {
	f := newTestController(t, Options{})
	path := testsupport.WriteVideo(t, "holiday.mp4", 300<<10)
	file, err := FileFromPath(path)
	if err != nil {
		t.Fatalf("file from path: %v", err)
	}
	if file.Name != "holiday.mp4" || file.ContentType != "video/mp4" || file.Size != 300<<10 {
		t.Fatalf("unexpected file source: %+v", file)
	}

	f.backend.NextJobID = "job-disk"
	uploader := &MultipartUploader{backend: f.client, session: f.session}
	resp, err := uploader.Upload(context.Background(), file, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.JobID != "job-disk" || resp.VideoInfo.DurationSeconds != 600 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := f.backend.UploadedSize("job-disk"); got != 300<<10 {
		t.Fatalf("expected %d bytes got %d", 300<<10, got)
	}
}

func TestPresignedUploader(t *testing.T) {
	uploader := &PresignedUploader{}
	f := newTestController(t, Options{})
	uploader.backend = f.client
	uploader.session = f.session
	f.ctrl.uploader = uploader

	f.backend.NextJobID = "job-presigned"
	f.ctrl.SelectFile(FileFromBytes("talk.mkv", bytes.Repeat([]byte{9}, 4096)))

	var (
		mu   sync.Mutex
		last float64
	)
	err := f.ctrl.Upload(context.Background(), func(pct float64) {
		mu.Lock()
		last = pct
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if last != 100 {
		t.Fatalf("expected final progress 100 got %v", last)
	}
	if got := f.backend.UploadedSize("job-presigned"); got != 4096 {
		t.Fatalf("expected 4096 bytes at storage got %d", got)
	}
	info, ok := f.ctrl.VideoInfo()
	if !ok || info.DurationSeconds != 600 {
		t.Fatalf("expected video info from upload completion got %+v", info)
	}
	if f.ctrl.State() != StateConfiguring {
		t.Fatalf("expected configuring got %s", f.ctrl.State())
	}
}

func TestPresignedUploaderMetadataOnly(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.MetadataOnlyUploads = true
	f.backend.NextJobID = "job-meta"

	uploader := &PresignedUploader{backend: f.client, session: f.session}
	resp, err := uploader.Upload(context.Background(), FileFromBytes("talk.mp4", []byte("abc")), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.JobID != "job-meta" || resp.VideoInfo.DurationSeconds != 600 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPresignedUploaderWithoutCompleteEndpoint(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.NoUploadComplete = true
	f.backend.NextJobID = "job-nocomplete"

	uploader := &PresignedUploader{backend: f.client, session: f.session}
	resp, err := uploader.Upload(context.Background(), FileFromBytes("talk.mp4", bytes.Repeat([]byte{1}, 512)), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.JobID != "job-nocomplete" || resp.VideoInfo.DurationSeconds != 600 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := f.backend.UploadedSize("job-nocomplete"); got != 512 {
		t.Fatalf("expected 512 bytes at storage got %d", got)
	}
}

func TestUploaderOpenFailure(t *testing.T) {
	f := newTestController(t, Options{})
	file := FileSource{
		Name:        "gone.mp4",
		Size:        10,
		ContentType: "video/mp4",
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("file vanished")
		},
	}

	uploader := &PresignedUploader{backend: f.client, session: f.session}
	if _, err := uploader.Upload(context.Background(), file, nil); err == nil {
		t.Fatal("expected open failure")
	}

	f.ctrl.SelectFile(file)
	err := f.ctrl.Upload(context.Background(), nil)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected upload error got %v", err)
	}
}

func TestUploaderRejectedByBackend(t *testing.T) {
	f := newTestController(t, Options{})
	f.backend.FailUpload = http.StatusRequestEntityTooLarge

	uploader := &PresignedUploader{backend: f.client, session: f.session}
	_, err := uploader.Upload(context.Background(), FileFromBytes("big.mp4", []byte("x")), nil)
	if err == nil {
		t.Fatal("expected rejection")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.MP4":    "video/mp4",
		"b.mkv":    "video/x-matroska",
		"c.avi":    "video/x-msvideo",
		"d.nosuch": "application/octet-stream",
	}
	for name, want := range cases {
		if got := contentTypeFor(name); got != want {
			t.Fatalf("%s: expected %s got %s", name, want, got)
		}
	}
}
