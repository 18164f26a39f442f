// Package objstore writes audit files to S3-compatible object stores
// (Cloudflare R2, MinIO, S3) with path-style SigV4 requests.
package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// DefaultRegion is what R2 and most S3-compatible stores accept.
const DefaultRegion = "auto"

type Config struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Timeout bounds one request; zero means 2m.
	Timeout time.Duration
}

// Store addresses one bucket.
type Store struct {
	base   *url.URL
	bucket string
	sig    signer
	client *http.Client
	now    func() time.Time
}

// StatusError is a non-2xx answer from the store.
type StatusError struct {
	Op     string
	Key    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.Key, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.Key, e.Status, e.Body)
}

var ErrBadKey = errors.New("objstore: invalid object key")

func Open(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	ak := strings.TrimSpace(cfg.AccessKeyID)
	sk := strings.TrimSpace(cfg.SecretAccessKey)
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("objstore: endpoint and bucket are required")
	}
	if ak == "" || sk == "" {
		return nil, fmt.Errorf("objstore: access key and secret are required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("objstore: endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("objstore: endpoint %q must be http(s)://host", cfg.Endpoint)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultRegion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Store{
		base:   u,
		bucket: bucket,
		sig:    signer{accessKey: ak, secretKey: sk, region: region},
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}, nil
}

// Endpoint is the normalized base URL.
func (s *Store) Endpoint() string { return s.base.String() }

// Put uploads body under key. The body is read once to hash it and then
// rewound for the request.
func (s *Store) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	key = CleanKey(key)
	if key == "" {
		return ErrBadKey
	}
	h := sha256.New()
	size, err := io.Copy(h, body)
	if err != nil {
		return fmt.Errorf("hash %s: %w", key, err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), io.NopCloser(body))
	if err != nil {
		return err
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	s.sig.sign(req, hex.EncodeToString(h.Sum(nil)), s.now())
	return s.do(req, "put", key)
}

// PutFile uploads the file at localPath under key.
func (s *Store) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", localPath)
	}
	return s.Put(ctx, key, f, ContentType(key))
}

// Exists reports whether key is present (HEAD 200 vs 404).
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	key = CleanKey(key)
	if key == "" {
		return false, ErrBadKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err != nil {
		return false, err
	}
	s.sig.sign(req, hexSHA256(nil), s.now())
	err = s.do(req, "head", key)
	var se *StatusError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) do(req *http.Request, op, key string) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return &StatusError{Op: op, Key: key, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func (s *Store) objectURL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.base.String() + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segs, "/")
}

// CleanKey normalizes slashes and rejects keys that escape the bucket
// root; it returns "" for those.
func CleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if strings.Trim(key, "/") == "" {
		return ""
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return ""
		}
	}
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

func ContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".jsonl.zst"), strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
