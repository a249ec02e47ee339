// Package testsupport provides an in-process fake of the video-splitting
// backend for package tests.
package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidsplit/client/internal/models"
)

// StatusStep is one scripted reply of GET /job-status/{jobID}.
// A zero Code means 200 with Job as the body.
type StatusStep struct {
	Code int
	Job  models.Job
}

type account struct {
	profile      models.UserProfile
	passwordHash []byte
	totpCode     string
}

type job struct {
	id       string
	filename string
	size     int64
	config   *models.SplitConfig
	script   []StatusStep
	polls    int
	files    map[string][]byte
}

// Backend is a scripted fake of the splitting service.
type Backend struct {
	Server *httptest.Server

	// AccessTTL is the lifetime written into issued access tokens.
	AccessTTL time.Duration
	// PublicDownloads lets /download be fetched without a token.
	PublicDownloads bool
	// NextJobID overrides the id assigned by the next upload.
	NextJobID string
	// VideoInfo is returned for every upload.
	VideoInfo models.VideoInfo
	// RefreshGate, when set, blocks /auth/refresh until it is closed or receives.
	RefreshGate chan struct{}
	// FailRefresh makes /auth/refresh answer 401.
	FailRefresh bool
	// FailUpload makes /upload-video answer with this status.
	FailUpload int
	// FailSplit makes /split-video answer with this status.
	FailSplit int
	// StatusDelay is slept inside every job-status reply.
	StatusDelay time.Duration
	// MetadataOnlyUploads makes a JSON /upload-video answer {job_id, video_info}
	// without an upload URL.
	MetadataOnlyUploads bool
	// NoUploadComplete makes /upload-complete answer 404 and puts video_info
	// into the upload URL response instead.
	NoUploadComplete bool

	RefreshCalls atomic.Int32
	MeCalls      atomic.Int32
	StatusCalls  atomic.Int32
	LoginCalls   atomic.Int32

	inflightStatus atomic.Int32
	maxInflight    atomic.Int32

	mu       sync.Mutex
	key      []byte
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	jobs     map[string]*job
}

// NewBackend starts a fake backend. Close it with b.Server.Close.
func NewBackend() *Backend {
	b := &Backend{
		AccessTTL: 15 * time.Minute,
		VideoInfo: models.VideoInfo{DurationSeconds: 600, Format: "mp4", SizeBytes: 1024, VideoStreamCount: 1, AudioStreamCount: 1},
		key:       []byte(uuid.NewString()),
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		jobs:      make(map[string]*job),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.login)
	mux.HandleFunc("POST /auth/refresh", b.refreshTokens)
	mux.HandleFunc("GET /auth/me", b.me)
	mux.HandleFunc("POST /upload-video", b.upload)
	mux.HandleFunc("PUT /storage/{jobID}", b.storagePut)
	mux.HandleFunc("POST /upload-complete/{jobID}", b.uploadComplete)
	mux.HandleFunc("POST /split-video/{jobID}", b.split)
	mux.HandleFunc("GET /job-status/{jobID}", b.status)
	mux.HandleFunc("GET /download/{jobID}/{file}", b.download)

	b.Server = httptest.NewServer(mux)
	return b
}

// URL returns the base URL of the fake.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close stops the server.
func (b *Backend) Close() {
	b.Server.Close()
}

// AddUser registers an account. A non-empty totpCode makes login require it.
func (b *Backend) AddUser(username, password, totpCode string) models.UserProfile {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	profile := models.UserProfile{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         strings.ToUpper(username[:1]) + username[1:],
		Email:        username + "@example.com",
		Role:         models.RoleUser,
		IsVerified:   true,
		Is2FAEnabled: totpCode != "",
	}
	b.mu.Lock()
	b.accounts[username] = &account{profile: profile, passwordHash: hash, totpCode: totpCode}
	b.mu.Unlock()
	return profile
}

// IssueTokens creates a valid pair for username without going through login.
func (b *Backend) IssueTokens(username string) models.TokenPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(username)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	b.access = make(map[string]string)
	b.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	b.refresh = make(map[string]string)
	b.mu.Unlock()
}

// ScriptStatus sets the replies for job polls. The last step repeats.
func (b *Backend) ScriptStatus(jobID string, steps ...StatusStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j := b.jobLocked(jobID)
	j.script = steps
	j.polls = 0
}

// AddFile makes a produced segment downloadable.
func (b *Backend) AddFile(jobID, name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobLocked(jobID).files[name] = data
}

// SubmittedConfig returns the split configuration posted for jobID.
func (b *Backend) SubmittedConfig(jobID string) (models.SplitConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[jobID]
	if !ok || j.config == nil {
		return models.SplitConfig{}, false
	}
	return *j.config, true
}

// UploadedSize returns the number of bytes received for jobID.
func (b *Backend) UploadedSize(jobID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[jobID]; ok {
		return j.size
	}
	return 0
}

// MaxConcurrentStatus reports the highest number of overlapping status calls seen.
func (b *Backend) MaxConcurrentStatus() int {
	return int(b.maxInflight.Load())
}

func (b *Backend) jobLocked(id string) *job {
	j, ok := b.jobs[id]
	if !ok {
		j = &job{id: id, files: make(map[string][]byte)}
		b.jobs[id] = j
	}
	return j
}

func (b *Backend) issueLocked(username string) models.TokenPair {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(b.AccessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()
	b.access[signed] = username
	b.refresh[refresh] = username
	return models.TokenPair{AccessToken: signed, RefreshToken: refresh}
}

// authorize returns the username behind the bearer token, or writes a 401.
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return "", false
	}
	b.mu.Lock()
	username, found := b.access[token]
	b.mu.Unlock()
	if !found {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token expired"})
		return "", false
	}
	return username, true
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	b.LoginCalls.Add(1)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTPCode string `json:"totp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	if acct.totpCode != "" {
		if req.TOTPCode == "" {
			respondJSON(w, http.StatusUnauthorized, map[string]any{"detail": "2FA code required", "requires_2fa": true})
			return
		}
		if req.TOTPCode != acct.totpCode {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid 2FA code"})
			return
		}
	}

	pair := b.issueLocked(req.Username)
	profile := acct.profile
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user":          profile,
	})
}

func (b *Backend) refreshTokens(w http.ResponseWriter, r *http.Request) {
	b.RefreshCalls.Add(1)
	if b.RefreshGate != nil {
		<-b.RefreshGate
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	username, ok := b.refresh[req.RefreshToken]
	if b.FailRefresh || !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh token"})
		return
	}
	delete(b.refresh, req.RefreshToken)
	respondJSON(w, http.StatusOK, b.issueLocked(username))
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.MeCalls.Add(1)
	username, ok := b.authorize(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	profile := b.accounts[username].profile
	b.mu.Unlock()
	respondJSON(w, http.StatusOK, profile)
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}
	if b.FailUpload != 0 {
		respondJSON(w, b.FailUpload, map[string]string{"detail": "upload rejected"})
		return
	}

	b.mu.Lock()
	id := b.NextJobID
	b.NextJobID = ""
	if id == "" {
		id = uuid.NewString()
	}
	b.mu.Unlock()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Filename string `json:"filename"`
			FileType string `json:"fileType"`
			FileSize int64  `json:"fileSize"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "filename is required"})
			return
		}
		b.mu.Lock()
		j := b.jobLocked(id)
		j.filename = req.Filename
		if b.MetadataOnlyUploads {
			j.size = req.FileSize
		}
		info := b.VideoInfo
		b.mu.Unlock()
		if b.MetadataOnlyUploads {
			respondJSON(w, http.StatusOK, map[string]any{"job_id": id, "video_info": info})
			return
		}
		payload := map[string]any{
			"job_id":     id,
			"upload_url": b.Server.URL + "/storage/" + id,
			"headers":    map[string]string{"x-amz-acl": "private"},
		}
		if b.NoUploadComplete {
			payload["video_info"] = info
		}
		respondJSON(w, http.StatusOK, payload)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "file is required"})
		return
	}
	defer file.Close()
	n, err := io.Copy(io.Discard, file)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "read upload"})
		return
	}

	b.mu.Lock()
	j := b.jobLocked(id)
	j.filename = header.Filename
	j.size = n
	info := b.VideoInfo
	b.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]any{"job_id": id, "video_info": info})
}

func (b *Backend) storagePut(w http.ResponseWriter, r *http.Request) {
	n, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.jobLocked(r.PathValue("jobID")).size = n
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) uploadComplete(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}
	if b.NoUploadComplete {
		http.NotFound(w, r)
		return
	}
	id := r.PathValue("jobID")
	b.mu.Lock()
	info := b.VideoInfo
	j, ok := b.jobs[id]
	uploaded := ok && j.size > 0
	b.mu.Unlock()
	if !uploaded {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "upload not found"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"job_id": id, "video_info": info})
}

func (b *Backend) split(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}
	if b.FailSplit != 0 {
		respondJSON(w, b.FailSplit, map[string]string{"detail": "split rejected"})
		return
	}
	var cfg models.SplitConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid split config"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[r.PathValue("jobID")]
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}
	j.config = &cfg
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	b.StatusCalls.Add(1)
	inflight := b.inflightStatus.Add(1)
	defer b.inflightStatus.Add(-1)
	for {
		seen := b.maxInflight.Load()
		if inflight <= seen || b.maxInflight.CompareAndSwap(seen, inflight) {
			break
		}
	}
	if b.StatusDelay > 0 {
		time.Sleep(b.StatusDelay)
	}

	if _, ok := b.authorize(w, r); !ok {
		return
	}

	b.mu.Lock()
	j, ok := b.jobs[r.PathValue("jobID")]
	if !ok {
		b.mu.Unlock()
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}
	step := StatusStep{Job: models.Job{ID: j.id, Status: models.JobProcessing}}
	if len(j.script) > 0 {
		idx := j.polls
		if idx >= len(j.script) {
			idx = len(j.script) - 1
		}
		step = j.script[idx]
	}
	j.polls++
	b.mu.Unlock()

	if step.Code != 0 && step.Code != http.StatusOK {
		respondJSON(w, step.Code, map[string]string{"detail": http.StatusText(step.Code)})
		return
	}
	if step.Job.ID == "" {
		step.Job.ID = j.id
	}
	respondJSON(w, http.StatusOK, step.Job)
}

func (b *Backend) download(w http.ResponseWriter, r *http.Request) {
	if !b.PublicDownloads {
		if _, ok := b.authorize(w, r); !ok {
			return
		}
	}
	b.mu.Lock()
	var data []byte
	found := false
	if j, ok := b.jobs[r.PathValue("jobID")]; ok {
		data, found = j.files[r.PathValue("file")]
	}
	b.mu.Unlock()
	if !found {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "file not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
