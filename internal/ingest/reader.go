// Package ingest provides the observation line sources read by the
// aggregation job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const s3Scheme = "s3://"

var ErrNoObjectStore = errors.New("s3 input requires an object store")

// ObjectOpener streams an object out of a bucket.
type ObjectOpener interface {
	OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Location is a parsed input URI.
type Location struct {
	Bucket string // set for s3:// inputs
	Key    string
	Path   string // set for local files
	Stdin  bool
}

// ParseLocation classifies uri as stdin ("-" or empty), s3://bucket/key or
// a local path.
func ParseLocation(uri string) (Location, error) {
	switch {
	case uri == "" || uri == "-":
		return Location{Stdin: true}, nil
	case strings.HasPrefix(uri, s3Scheme):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", uri)
		}
		return Location{Bucket: bucket, Key: key}, nil
	default:
		return Location{Path: uri}, nil
	}
}

// Open resolves uri to a reader. objects may be nil when no s3:// input is used.
func Open(ctx context.Context, uri string, objects ObjectOpener) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}

	switch {
	case loc.Stdin:
		return io.NopCloser(os.Stdin), nil
	case loc.Bucket != "":
		if objects == nil {
			return nil, ErrNoObjectStore
		}
		return objects.OpenObject(ctx, loc.Bucket, loc.Key)
	default:
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		return f, nil
	}
}

// OpenAll opens every uri and concatenates them into one stream. Each input
// is newline-terminated so lines never merge across inputs.
func OpenAll(ctx context.Context, uris []string, objects ObjectOpener) (io.ReadCloser, error) {
	if len(uris) == 0 {
		uris = []string{"-"}
	}

	readers := make([]io.Reader, 0, 2*len(uris))
	closers := make(multiCloser, 0, len(uris))
	for _, uri := range uris {
		rc, err := Open(ctx, uri, objects)
		if err != nil {
			_ = closers.Close()
			return nil, err
		}
		closers = append(closers, rc)
		readers = append(readers, rc, strings.NewReader("\n"))
	}
	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(readers...), closers}, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
