// Package diskstore is the ports.ObjectStore the pipeline ships with: a
// filesystem directory tree rooted at a base path, one subdirectory per
// bucket. The real object-store backing a production deployment (GCS, S3)
// is an explicit external collaborator per spec §1; this adapter is the
// concrete implementation this self-contained repository can run end to
// end without one.
package diskstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
)

// Store is a filesystem-backed ObjectStore.
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir, creating it if necessary.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: create base dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

var _ ports.ObjectStore = (*Store)(nil)

func (s *Store) path(bucket, name string) (string, error) {
	// Reject path traversal: an object name is never allowed to escape its
	// bucket directory.
	clean := filepath.Clean(name)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("diskstore: invalid object name %q", name)
	}
	return filepath.Join(s.baseDir, bucket, clean), nil
}

func (s *Store) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	p, err := s.path(bucket, name)
	if err != nil {
		return nil, errs.WrapPermanent(err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, errs.Transientf("diskstore: read %s/%s: %w", bucket, name, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	p, err := s.path(bucket, name)
	if err != nil {
		return "", errs.WrapPermanent(err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errs.Transientf("diskstore: mkdir for %s/%s: %w", bucket, name, err)
	}
	// Overwrite-safe: if identical bytes are already at rest, skip the
	// write entirely so concurrent redeliveries never race each other on
	// the same path.
	if existing, readErr := os.ReadFile(p); readErr == nil && bytes.Equal(existing, data) {
		return "file://" + p, nil
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errs.Transientf("diskstore: write %s/%s: %w", bucket, name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", errs.Transientf("diskstore: finalize %s/%s: %w", bucket, name, err)
	}
	return "file://" + p, nil
}

func (s *Store) Copy(ctx context.Context, srcBucket, srcName, dstBucket, dstName string) (string, error) {
	data, err := s.Get(ctx, srcBucket, srcName)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, dstBucket, dstName, data, "")
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectRef, error) {
	root := filepath.Join(s.baseDir, bucket)
	var out []ports.ObjectRef
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ports.ObjectRef{Bucket: bucket, Name: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errs.Transientf("diskstore: list %s/%s: %w", bucket, prefix, err)
	}
	return out, nil
}
