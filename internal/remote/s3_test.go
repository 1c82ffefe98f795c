package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
)

func testS3Server(t *testing.T, handler http.HandlerFunc) (*S3Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewS3Client(&S3Config{
		Endpoint:       srv.URL,
		BucketName:     "property-photos",
		AccessKey:      "test-access",
		SecretKey:      "test-secret",
		Region:         "us-east-1",
		ForcePathStyle: true,
	})
	return client, srv
}

// TestS3PutRequest tests the put request shape: path-style URL, body,
// content type, create-only precondition.
func TestS3PutRequest(t *testing.T) {
	var gotMethod, gotPath, gotType, gotMatch string
	var gotBody []byte

	client, _ := testS3Server(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotMatch = r.Header.Get("If-None-Match")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	data := []byte("jpeg bytes")
	if err := client.Put(context.Background(), "est-1/photo.jpg", data, "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("Expected PUT, got %s", gotMethod)
	}
	if gotPath != "/property-photos/est-1/photo.jpg" {
		t.Errorf("Expected path-style key, got %s", gotPath)
	}
	if gotType != "image/jpeg" {
		t.Errorf("Expected image content type, got %s", gotType)
	}
	if gotMatch != "*" {
		t.Errorf("Expected create-only precondition, got %q", gotMatch)
	}
	if string(gotBody) != string(data) {
		t.Errorf("Body mismatch: %q", gotBody)
	}
}

// TestS3PutPathConflict tests that an existing object surfaces as a
// path-conflict error the queue can act on.
func TestS3PutPathConflict(t *testing.T) {
	client, _ := testS3Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	err := client.Put(context.Background(), "est-1/photo.jpg", []byte("x"), "image/jpeg")
	if err == nil {
		t.Fatal("Expected error for existing object")
	}
	if !apperrors.HasCode(err, apperrors.ErrPathConflict) {
		t.Errorf("Expected path conflict error, got %v", err)
	}
}

// TestS3PutServerError tests that other failures are not classified as
// path conflicts.
func TestS3PutServerError(t *testing.T) {
	client, _ := testS3Server(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "access denied", http.StatusForbidden)
	})

	err := client.Put(context.Background(), "est-1/photo.jpg", []byte("x"), "image/jpeg")
	if err == nil {
		t.Fatal("Expected error for 403 response")
	}
	if apperrors.HasCode(err, apperrors.ErrPathConflict) {
		t.Error("403 must not be classified as a path conflict")
	}
	if !apperrors.HasCode(err, apperrors.ErrUploadFailed) {
		t.Errorf("Expected upload failure code, got %v", err)
	}
}

// TestS3Delete tests object deletion.
func TestS3Delete(t *testing.T) {
	var gotMethod, gotPath string
	client, _ := testS3Server(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.Delete(context.Background(), "est-1/photo.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/property-photos/est-1/photo.jpg" {
		t.Errorf("Unexpected path %s", gotPath)
	}
}

// TestS3PublicURL tests URL derivation in both addressing styles. The
// virtual-host style must hoist the bucket between the scheme and the
// host, never prepend it to the scheme.
func TestS3PublicURL(t *testing.T) {
	tests := []struct {
		name     string
		config   S3Config
		want     string
		wantHost string
	}{
		{
			name: "path style with scheme",
			config: S3Config{
				Endpoint:       "http://localhost:9000",
				BucketName:     "property-photos",
				ForcePathStyle: true,
			},
			want:     "http://localhost:9000/property-photos/est-1/a.jpg",
			wantHost: "localhost:9000",
		},
		{
			name: "virtual host with scheme",
			config: S3Config{
				Endpoint:   "https://s3.amazonaws.com",
				BucketName: "property-photos",
			},
			want:     "https://property-photos.s3.amazonaws.com/est-1/a.jpg",
			wantHost: "property-photos.s3.amazonaws.com",
		},
		{
			name: "virtual host bare host",
			config: S3Config{
				Endpoint:   "s3.amazonaws.com",
				BucketName: "property-photos",
			},
			want:     "property-photos.s3.amazonaws.com/est-1/a.jpg",
			wantHost: "property-photos.s3.amazonaws.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewS3Client(&tt.config)
			if got := c.PublicURL("est-1/a.jpg"); got != tt.want {
				t.Errorf("Unexpected URL: %s", got)
			}
			if got := c.hostHeader(); got != tt.wantHost {
				t.Errorf("Unexpected host header: %s", got)
			}
		})
	}
}
