package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/vidsplit/client/internal/api"
	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/models"
)

// Authorizer runs backend calls with the session's credentials.
// *auth.Manager satisfies it.
type Authorizer interface {
	AuthorizedRequest(ctx context.Context, fn auth.RequestFunc) (*http.Response, error)
	Authenticated() bool
}

// Backend is the part of the API the controller and uploaders use.
// *api.Client satisfies it.
type Backend interface {
	BaseURL() string
	UploadVideo(ctx context.Context, header http.Header, body io.Reader, contentType string, size int64) (*http.Response, error)
	RequestUploadURL(ctx context.Context, header http.Header, in api.UploadURLRequest) (*http.Response, error)
	PutPresigned(ctx context.Context, target string, headers map[string]string, body io.Reader, size int64, contentType string) error
	CompleteUpload(ctx context.Context, header http.Header, jobID string) (*http.Response, error)
	SubmitSplit(ctx context.Context, header http.Header, jobID string, cfg models.SplitConfig) (*http.Response, error)
	JobStatus(ctx context.Context, header http.Header, jobID string) (*http.Response, error)
	Download(ctx context.Context, header http.Header, jobID, filename string) (*http.Response, error)
}

// Uploader transfers a staged file and returns the created job.
// progress receives byte-level percentages; it may restart from zero when
// the request is retried after a refresh.
type Uploader interface {
	Upload(ctx context.Context, file FileSource, progress func(float64)) (api.UploadResponse, error)
}

// NewUploader returns the uploader for mode ("multipart" or "presigned").
func NewUploader(mode string, backend Backend, session Authorizer) (Uploader, error) {
	switch mode {
	case "", "multipart":
		return &MultipartUploader{backend: backend, session: session}, nil
	case "presigned":
		return &PresignedUploader{backend: backend, session: session}, nil
	default:
		return nil, fmt.Errorf("unknown upload mode %q", mode)
	}
}

// MultipartUploader streams the file as a multipart form to /upload-video.
type MultipartUploader struct {
	backend Backend
	session Authorizer
}

// Upload implements Uploader.
func (u *MultipartUploader) Upload(ctx context.Context, file FileSource, progress func(float64)) (api.UploadResponse, error) {
	resp, err := u.session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			defer src.Close()
			err := writeFilePart(mw, file, &progressReader{r: src, size: file.Size, report: progress})
			_ = pw.CloseWithError(err)
		}()

		return u.backend.UploadVideo(ctx, header, pr, mw.FormDataContentType(), -1)
	})
	if err != nil {
		return api.UploadResponse{}, err
	}

	var out api.UploadResponse
	if err := api.DecodeJSON(resp, &out); err != nil {
		return api.UploadResponse{}, err
	}
	if out.JobID == "" {
		return api.UploadResponse{}, errors.New("upload response missing job_id")
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(mw *multipart.Writer, file FileSource, body io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// PresignedUploader asks the backend for a pre-signed storage URL, PUTs the
// bytes there, then confirms the upload.
type PresignedUploader struct {
	backend Backend
	session Authorizer
}

// Upload implements Uploader.
func (u *PresignedUploader) Upload(ctx context.Context, file FileSource, progress func(float64)) (api.UploadResponse, error) {
	resp, err := u.session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		return u.backend.RequestUploadURL(ctx, header, api.UploadURLRequest{
			Filename: file.Name,
			FileType: file.ContentType,
			FileSize: file.Size,
		})
	})
	if err != nil {
		return api.UploadResponse{}, err
	}
	var target api.UploadURLResponse
	if err := api.DecodeJSON(resp, &target); err != nil {
		return api.UploadResponse{}, err
	}
	if target.JobID == "" {
		return api.UploadResponse{}, errors.New("upload url response missing job_id")
	}
	if target.UploadURL == "" {
		// The backend registered the file from its metadata alone.
		if target.VideoInfo == nil {
			return api.UploadResponse{}, errors.New("upload url response missing upload_url and video_info")
		}
		return api.UploadResponse{JobID: target.JobID, VideoInfo: *target.VideoInfo}, nil
	}

	src, err := file.Open()
	if err != nil {
		return api.UploadResponse{}, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer src.Close()

	uploadURL := target.UploadURL
	if strings.HasPrefix(uploadURL, "/") {
		uploadURL = u.backend.BaseURL() + uploadURL
	}
	body := &progressReader{r: src, size: file.Size, report: progress}
	if err := u.backend.PutPresigned(ctx, uploadURL, target.Headers, body, file.Size, file.ContentType); err != nil {
		return api.UploadResponse{}, err
	}

	resp, err = u.session.AuthorizedRequest(ctx, func(ctx context.Context, header http.Header) (*http.Response, error) {
		return u.backend.CompleteUpload(ctx, header, target.JobID)
	})
	if err != nil {
		return api.UploadResponse{}, err
	}
	var out api.UploadResponse
	if err := api.DecodeJSON(resp, &out); err != nil {
		if target.VideoInfo != nil && api.IsNotFound(err) {
			return api.UploadResponse{JobID: target.JobID, VideoInfo: *target.VideoInfo}, nil
		}
		return api.UploadResponse{}, err
	}
	if out.JobID == "" {
		out.JobID = target.JobID
	}
	if out.VideoInfo.DurationSeconds == 0 && target.VideoInfo != nil {
		out.VideoInfo = *target.VideoInfo
	}
	return out, nil
}
