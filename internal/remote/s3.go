package remote

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
)

// S3Config holds S3-compatible object store connection configuration.
type S3Config struct {
	Endpoint       string
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // path-style URLs (minio, localstack)
}

// S3Client uploads photo blobs to an S3-compatible object store. Put uses
// a create-only precondition so a duplicate path is rejected with a
// path-conflict error instead of silently overwriting, letting the upload
// queue regenerate a unique name.
type S3Client struct {
	config     *S3Config
	httpClient *http.Client
}

// NewS3Client creates a new S3Client.
func NewS3Client(config *S3Config) *S3Client {
	return &S3Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Put uploads data under key, failing with a path-conflict error when an
// object already exists there.
func (c *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	req, err := c.createRequest(ctx, http.MethodPut, key, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	// Create-only: duplicate paths must be rejected, not overwritten.
	req.Header.Set("If-None-Match", "*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUploadFailed, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict {
		return apperrors.New(apperrors.ErrPathConflict,
			fmt.Sprintf("object already exists at %s", key))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrUploadFailed,
			fmt.Sprintf("upload failed with status %d: %s", resp.StatusCode, string(body)))
	}

	return nil
}

// Delete removes the object at key.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	req, err := c.createRequest(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUploadFailed, "delete request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrUploadFailed,
			fmt.Sprintf("delete failed with status %d: %s", resp.StatusCode, string(body)))
	}

	return nil
}

// PublicURL derives the stable retrieval URL for an uploaded object.
func (c *S3Client) PublicURL(key string) string {
	return c.baseURL() + "/" + key
}

// baseURL builds the bucket base URL in the configured addressing style.
// Virtual-host style hoists the bucket between the endpoint's scheme and
// host, so an endpoint like https://s3.example.com works in both styles.
func (c *S3Client) baseURL() string {
	if c.config.ForcePathStyle {
		return fmt.Sprintf("%s/%s", c.config.Endpoint, c.config.BucketName)
	}
	scheme, host := splitEndpoint(c.config.Endpoint)
	return fmt.Sprintf("%s%s.%s", scheme, c.config.BucketName, host)
}

// hostHeader is the Host header value for the configured addressing style.
func (c *S3Client) hostHeader() string {
	_, host := splitEndpoint(c.config.Endpoint)
	if c.config.ForcePathStyle {
		return host
	}
	return c.config.BucketName + "." + host
}

// splitEndpoint separates an optional scheme prefix from the endpoint's
// host part.
func splitEndpoint(endpoint string) (scheme, host string) {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[:i+3], endpoint[i+3:]
	}
	return "", endpoint
}

// createRequest creates an S3 request with authentication.
func (c *S3Client) createRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	urlStr := c.baseURL() + "/" + key

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}

	if !c.config.ForcePathStyle {
		req.Host = c.hostHeader()
	}

	timestamp := time.Now().UTC()
	amzDate := timestamp.Format("20060102T150405Z")

	req.Header.Set("Host", req.Host)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")

	authorization := c.calculateAuthorization(method, key, amzDate)
	req.Header.Set("Authorization", authorization)

	return req, nil
}

// calculateAuthorization calculates the AWS V4 signature authorization
// header. Simplified signing: host and x-amz-date only, unsigned payload.
func (c *S3Client) calculateAuthorization(method, key, amzDate string) string {
	dateStamp := amzDate[:8]
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)

	canonicalURI := "/" + c.config.BucketName + "/" + key
	canonicalQuery := ""
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n",
		c.hostHeader(), amzDate)
	signedHeaders := "host;x-amz-date"

	payloadHash := "UNSIGNED-PAYLOAD"

	canonicalRequest := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, canonicalURI, canonicalQuery, canonicalHeaders, signedHeaders+" "+payloadHash)

	algorithm := "AWS4-HMAC-SHA256"
	stringToSign := fmt.Sprintf("%s\n%s\n%s\n%s",
		algorithm, amzDate, scope, hex.EncodeToString(hashSHA256([]byte(canonicalRequest))))

	kSecret := []byte("AWS4" + c.config.SecretKey)
	kDate := hmacSHA256(kSecret, dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.config.AccessKey, scope, signedHeaders, signature)
}

// hmacSHA256 calculates HMAC-SHA256.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hashSHA256 calculates SHA256 hash.
func hashSHA256(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}
