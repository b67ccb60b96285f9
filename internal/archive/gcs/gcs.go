// Package gcs serves bundle entries from an unpacked bundle stored in
// Google Cloud Storage, one object per entry under a common prefix.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultTimeout = 30 * time.Second

// Config selects the bucket and prefix of one bundle.
type Config struct {
	Bucket          string
	Prefix          string
	CredentialsFile string

	// Timeout bounds each object read. Zero means defaultTimeout.
	Timeout time.Duration
}

// objectReader is the part of the storage client the accessor needs.
type objectReader interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

type clientReader struct {
	client *storage.Client
}

func (c clientReader) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c clientReader) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Accessor implements archive.Accessor on top of a GCS bucket.
// The context given to New bounds every read; it is not stored beyond the accessor.
type Accessor struct {
	ctx     context.Context
	objects objectReader
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// New creates a GCS client and an accessor for cfg.
func New(ctx context.Context, cfg Config) (*Accessor, error) {
	var client *storage.Client
	var err error

	if cfg.CredentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		// Use application default credentials
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	a := newAccessor(ctx, clientReader{client: client}, cfg)
	a.client = client
	return a, nil
}

func newAccessor(ctx context.Context, objects objectReader, cfg Config) *Accessor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Accessor{
		ctx:     ctx,
		objects: objects,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		timeout: timeout,
	}
}

// objectName maps an entry name to its object name under the prefix.
func (a *Accessor) objectName(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Get downloads the object for name. Missing objects and read failures are absent.
func (a *Accessor) Get(name string) ([]byte, bool) {
	if name == "" || strings.Contains(name, "..") {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	r, err := a.objects.NewReader(ctx, a.bucket, a.objectName(name))
	if err != nil {
		return nil, false
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Names lists the entry names under the prefix.
func (a *Accessor) Names() ([]string, error) {
	prefix := a.prefix
	if prefix != "" {
		prefix += "/"
	}
	objects, err := a.objects.List(a.ctx, a.bucket, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, strings.TrimPrefix(o, prefix))
	}
	return names, nil
}

// Close closes the underlying client, if this accessor created one.
func (a *Accessor) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
