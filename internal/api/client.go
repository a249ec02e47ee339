// Package api is the request/response contract of the video-splitting backend.
//
// Endpoints that require authorization take the header set to send; the
// session manager supplies it and decides what to do with a 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidsplit/client/internal/models"
)

// Client talks to the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a client rooted at baseURL. A nil httpClient gets a default
// with a 30s timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginResponse is the body returned by POST /auth/login.
type LoginResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	User         *models.UserProfile `json:"user"`
}

// UploadResponse is returned once the backend has the file and probed it.
type UploadResponse struct {
	JobID     string           `json:"job_id"`
	VideoInfo models.VideoInfo `json:"video_info"`
}

// UploadURLRequest asks the backend for a pre-signed upload target.
type UploadURLRequest struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// UploadURLResponse carries the pre-signed target for the file bytes.
type UploadURLResponse struct {
	JobID     string            `json:"job_id"`
	UploadURL string            `json:"upload_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	VideoInfo *models.VideoInfo `json:"video_info,omitempty"`
}

// Login exchanges credentials for a token pair. It does not need authorization.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, req)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("login request failed: %w", err)
	}
	var out LoginResponse
	if err := DecodeJSON(resp, &out); err != nil {
		return LoginResponse{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return LoginResponse{}, fmt.Errorf("login response missing tokens")
	}
	return out, nil
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", nil, body)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh request failed: %w", err)
	}
	var out models.TokenPair
	if err := DecodeJSON(resp, &out); err != nil {
		return models.TokenPair{}, err
	}
	if out.AccessToken == "" {
		return models.TokenPair{}, fmt.Errorf("refresh response missing access token")
	}
	if out.RefreshToken == "" {
		c.logger.Debug("refresh response kept the previous refresh token")
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// Me requests the profile of the token holder.
func (c *Client) Me(ctx context.Context, header http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, "/auth/me", header, nil, "")
}

// FetchMe calls Me and decodes the profile.
func (c *Client) FetchMe(ctx context.Context, header http.Header) (models.UserProfile, error) {
	resp, err := c.Me(ctx, header)
	if err != nil {
		return models.UserProfile{}, err
	}
	var profile models.UserProfile
	if err := DecodeJSON(resp, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// UploadVideo posts a multipart body to /upload-video.
func (c *Client) UploadVideo(ctx context.Context, header http.Header, body io.Reader, contentType string, size int64) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/upload-video", header, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}
	return c.httpClient.Do(req)
}

// RequestUploadURL asks /upload-video for a pre-signed target instead of the bytes.
func (c *Client) RequestUploadURL(ctx context.Context, header http.Header, in UploadURLRequest) (*http.Response, error) {
	return c.doJSON(ctx, http.MethodPost, "/upload-video", header, in)
}

// CompleteUpload tells the backend the pre-signed upload finished.
func (c *Client) CompleteUpload(ctx context.Context, header http.Header, jobID string) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, "/upload-complete/"+url.PathEscape(jobID), header, nil, "")
}

// PutPresigned sends the file bytes straight to the storage URL handed out by the backend.
func (c *Client) PutPresigned(ctx context.Context, target string, headers map[string]string, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return fmt.Errorf("build presigned upload: %w", err)
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("presigned upload failed: %w", err)
	}
	if err := CheckResponse(resp); err != nil {
		return err
	}
	Discard(resp)
	return nil
}

// SubmitSplit posts the split configuration for a job.
func (c *Client) SubmitSplit(ctx context.Context, header http.Header, jobID string, cfg models.SplitConfig) (*http.Response, error) {
	return c.doJSON(ctx, http.MethodPost, "/split-video/"+url.PathEscape(jobID), header, cfg)
}

// JobStatus requests the current state of a job.
func (c *Client) JobStatus(ctx context.Context, header http.Header, jobID string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, "/job-status/"+url.PathEscape(jobID), header, nil, "")
}

// Download requests one produced segment. header may be nil for public downloads.
func (c *Client) Download(ctx context.Context, header http.Header, jobID, filename string) (*http.Response, error) {
	path := "/download/" + url.PathEscape(jobID) + "/" + url.PathEscape(filename)
	return c.Do(ctx, http.MethodGet, path, header, nil, "")
}

// Do issues a request against the backend and returns the raw response,
// whatever its status.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body io.Reader, contentType string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, header, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, header http.Header, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}
	return c.Do(ctx, method, path, header, bytes.NewReader(data), "application/json")
}

func (c *Client) newRequest(ctx context.Context, method, path string, header http.Header, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
