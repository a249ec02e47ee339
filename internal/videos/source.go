package videos

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileSource is a video staged for upload. Open is called once per upload
// attempt, so a retried request re-reads the file from the start.
type FileSource struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath stages a file on disk.
func FileFromPath(path string) (FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return FileSource{}, fmt.Errorf("%s is a directory", path)
	}
	return FileSource{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentTypeFor(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FileFromBytes stages an in-memory file.
func FileFromBytes(name string, data []byte) FileSource {
	return FileSource{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentTypeFor(name),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

func contentTypeFor(name string) string {
	if ct, ok := videoContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// progressReader reports the share of size read so far.
type progressReader struct {
	r      io.Reader
	size   int64
	read   int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.size > 0 && p.report != nil {
			p.report(percentOf(p.read, p.size))
		}
	}
	return n, err
}

func percentOf(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(done) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
