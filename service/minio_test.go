package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Gandorini/S-T-Station/config"
)

func TestNewMinioService(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Region:    "us-east-1",
	}

	svc, err := NewMinioService(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if svc == nil {
		t.Error("Expected non-nil service")
	}
}

func TestObjectKey(t *testing.T) {
	tests := map[string]string{
		"sheet.xml":           "uploads/sheet.xml",
		"My Sheet (1).mid":    "uploads/My_Sheet__1_.mid",
		"../../etc/passwd":    "uploads/.._.._etc_passwd",
		"canção-nº1.musicxml": "uploads/can__o-n_1.musicxml",
	}
	for in, want := range tests {
		if got := ObjectKey(in); got != want {
			t.Errorf("ObjectKey(%q): expected '%s', got '%s'", in, want, got)
		}
	}
}

func TestMinioServiceGetPublicURL(t *testing.T) {
	tests := []struct {
		name       string
		useSSL     bool
		endpoint   string
		publicURL  string
		bucket     string
		objectName string
		expected   string
	}{
		{
			name:       "http url",
			endpoint:   "localhost:9000",
			bucket:     "music-sheets-xml",
			objectName: "uploads/file.xml",
			expected:   "http://localhost:9000/music-sheets-xml/uploads/file.xml",
		},
		{
			name:       "https url",
			useSSL:     true,
			endpoint:   "minio.example.com",
			bucket:     "music-sheets-midi",
			objectName: "uploads/song.mid",
			expected:   "https://minio.example.com/music-sheets-midi/uploads/song.mid",
		},
		{
			name:       "public base url",
			endpoint:   "minio:9000",
			publicURL:  "https://cdn.example.com/",
			bucket:     "music-sheets-midi",
			objectName: "uploads/song.mid",
			expected:   "https://cdn.example.com/music-sheets-midi/uploads/song.mid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MinioService{
				config: &config.MinioConfig{
					Endpoint:  tt.endpoint,
					UseSSL:    tt.useSSL,
					PublicURL: tt.publicURL,
				},
			}

			result := svc.GetPublicURL(tt.bucket, tt.objectName)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

// fakeS3 answers just enough of the S3 API for bucket checks and single-part uploads.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string]string
	policies map[string]string
	requests []string
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}, policies: map[string]string{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	return f
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	bucketLevel := len(parts) == 1 || parts[1] == ""
	switch {
	case r.Method == http.MethodHead && bucketLevel:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && bucketLevel && r.URL.Query().Has("policy"):
		body, _ := io.ReadAll(r.Body)
		f.policies[bucket] = string(body)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && bucketLevel:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			body = decodeAWSChunked(body)
		}
		f.objects[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// decodeAWSChunked strips the signed chunk framing the client uses for PUT
// over plain HTTP: "<hex size>;chunk-signature=...\r\n<data>\r\n", ending
// with a zero-size chunk.
func decodeAWSChunked(body []byte) []byte {
	var out []byte
	for len(body) > 0 {
		line, rest, ok := bytes.Cut(body, []byte("\r\n"))
		if !ok {
			break
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			break
		}
		out = append(out, rest[:size]...)
		body = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
	return out
}

func TestFakeS3BucketPathWithTrailingSlash(t *testing.T) {
	s3 := newFakeS3("music-sheets-xml")
	server := httptest.NewServer(s3)
	defer server.Close()

	tests := map[string]int{
		"/music-sheets-xml":   http.StatusOK,
		"/music-sheets-xml/":  http.StatusOK,
		"/music-sheets-midi/": http.StatusNotFound,
	}
	for path, want := range tests {
		req, _ := http.NewRequest(http.MethodHead, server.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("HEAD %s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/music-sheets-midi/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()
	if !s3.buckets["music-sheets-midi"] {
		t.Error("Expected trailing-slash PUT to create the bucket")
	}
	if len(s3.objects) != 0 {
		t.Errorf("Expected no objects, got %d", len(s3.objects))
	}
}

func newTestMinio(t *testing.T, s3 *fakeS3) *MinioService {
	t.Helper()
	server := httptest.NewServer(s3)
	t.Cleanup(server.Close)

	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Region:    "us-east-1",
		PublicURL: "https://files.example.com",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return svc
}

func TestMinioServiceStore(t *testing.T) {
	s3 := newFakeS3("music-sheets-xml")
	svc := newTestMinio(t, s3)

	url, err := svc.Store(context.Background(), "music-sheets-xml", "My Sheet.xml", []byte("<score-partwise/>"), "application/xml")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if url != "https://files.example.com/music-sheets-xml/uploads/My_Sheet.xml" {
		t.Errorf("Unexpected url: %s", url)
	}
	if got := s3.objects["/music-sheets-xml/uploads/My_Sheet.xml"]; got != "<score-partwise/>" {
		t.Errorf("Expected stored body, got '%s'", got)
	}
	if len(s3.policies) != 0 {
		t.Error("Expected no policy change for an existing bucket")
	}
}

func TestMinioServiceStoreCreatesBucketOnce(t *testing.T) {
	s3 := newFakeS3()
	svc := newTestMinio(t, s3)

	for i := 0; i < 2; i++ {
		if _, err := svc.Store(context.Background(), "music-sheets-midi", "a.mid", []byte("MThd"), "audio/midi"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if !s3.buckets["music-sheets-midi"] {
		t.Error("Expected bucket to be created")
	}
	if !strings.Contains(s3.policies["music-sheets-midi"], "arn:aws:s3:::music-sheets-midi/*") {
		t.Errorf("Expected public read policy, got '%s'", s3.policies["music-sheets-midi"])
	}
	heads := 0
	for _, r := range s3.requests {
		if strings.HasPrefix(r, "HEAD ") {
			heads++
		}
	}
	if heads != 1 {
		t.Errorf("Expected 1 bucket check, got %d", heads)
	}
}

func TestMinioServiceStoreCancelled(t *testing.T) {
	svc := newTestMinio(t, newFakeS3("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Store(ctx, "b", "x.mid", []byte("x"), "audio/midi"); err == nil {
		t.Error("Expected error with cancelled context")
	}
}
