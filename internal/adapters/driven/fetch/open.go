package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// defaultS3Endpoint is used when no endpoint is configured.
const defaultS3Endpoint = "s3.amazonaws.com"

// stream is an opened location.
type stream struct {
	io.ReadCloser

	// header holds HTTP response headers, nil for other schemes.
	header http.Header
}

// open resolves a location to a decompressed byte stream.
func (f *Fetcher) open(ctx context.Context, location string) (*stream, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: location %q: %v", domain.ErrInvalidInput, location, err)
	}

	var s *stream
	switch u.Scheme {
	case "http", "https":
		s, err = f.openHTTP(ctx, location)
	case "s3":
		s, err = f.openS3(ctx, location, u)
	case "file":
		s, err = openFile(location, u.Path)
	case "":
		s, err = openFile(location, location)
	default:
		return nil, domain.ConfigErrorf("unsupported location scheme %q in %s", u.Scheme, location)
	}
	if err != nil {
		return nil, err
	}

	body, err := decompress(u.Path, s.ReadCloser)
	if err != nil {
		return nil, &domain.FetchError{URL: location, Err: err}
	}
	s.ReadCloser = body
	return s, nil
}

func openFile(location, p string) (*stream, error) {
	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.FetchError{URL: location, StatusCode: http.StatusNotFound, Err: err}
		}
		return nil, &domain.FetchError{URL: location, Err: err}
	}
	return &stream{ReadCloser: file}, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, location string) (*stream, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", domain.ErrInvalidInput, location, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.FetchError{URL: location, Err: err}
	}
	f.limiter.Observe(resp)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &domain.FetchError{URL: location, StatusCode: resp.StatusCode}
	}
	return &stream{ReadCloser: resp.Body, header: resp.Header}, nil
}

func (f *Fetcher) openS3(ctx context.Context, location string, u *url.URL) (*stream, error) {
	bucket, key, err := parseS3Location(u)
	if err != nil {
		return nil, err
	}
	client, err := f.s3Client()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s3Error(location, err)
	}
	// GetObject is lazy; Stat surfaces missing objects and auth failures.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s3Error(location, err)
	}
	return &stream{ReadCloser: obj}, nil
}

// s3Client creates the object storage client on first use.
func (f *Fetcher) s3Client() (*minio.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.s3 != nil {
		return f.s3, nil
	}

	endpoint := f.settings.S3Endpoint
	if endpoint == "" {
		endpoint = defaultS3Endpoint
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(f.settings.S3AccessKey, f.settings.S3SecretKey, ""),
		Secure: !f.settings.S3Insecure,
	})
	if err != nil {
		return nil, domain.ConfigErrorf("s3 endpoint %q: %v", endpoint, err)
	}
	f.s3 = client
	return client, nil
}

func parseS3Location(u *url.URL) (bucket, key string, err error) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", domain.ConfigErrorf("s3 location %q needs a bucket and a key", u.String())
	}
	return bucket, key, nil
}

func s3Error(location string, err error) error {
	resp := minio.ToErrorResponse(err)
	return &domain.FetchError{URL: location, StatusCode: resp.StatusCode, Err: err}
}

// decompress wraps r according to the file extension of name.
func decompress(name string, r io.ReadCloser) (io.ReadCloser, error) {
	switch path.Ext(name) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &stacked{Reader: zr, closers: []io.Closer{zr, r}}, nil
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		rc := dec.IOReadCloser()
		return &stacked{Reader: rc, closers: []io.Closer{rc, r}}, nil
	default:
		return r, nil
	}
}

// stacked closes a decoder and the stream underneath it.
type stacked struct {
	io.Reader
	closers []io.Closer
}

func (s *stacked) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
