// Package ports defines the two abstract collaborators every stage talks
// to: an object store and a message bus. Both are interfaces so stage tests
// can substitute in-memory doubles instead of a real GCS/Kafka deployment.
package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by ObjectStore.Get (and by Copy, when the source
// object is missing) when the named object does not exist. Stages A and C
// check for it after Get and report a missing object as Permanent; Stages B
// and D do not check for it after Copy, and errs.KindOf classifies it as
// Transient there.
var ErrNotFound = errors.New("object not found")

// ObjectRef is a minimal listing entry returned by ObjectStore.List.
type ObjectRef struct {
	Bucket string
	Name   string
	Size   int64
}

// ObjectStore abstracts get/put/copy/list against a bucket-and-name object
// store. Implementations classify failures as kernel/errs.Transient or
// kernel/errs.Permanent; ErrNotFound is the one exception that callers
// handle directly rather than through the error-kind taxonomy.
type ObjectStore interface {
	// Get returns the full contents of bucket/name, or ErrNotFound.
	Get(ctx context.Context, bucket, name string) ([]byte, error)
	// Put writes data to bucket/name with the given content type and
	// returns a URI identifying the written object. Put is overwrite-safe:
	// repeating the same (bucket, name, data) yields the same bytes and
	// URI, so retried deliveries never corrupt previously-written pages.
	Put(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
	// Copy duplicates srcBucket/srcName to dstBucket/dstName byte for byte,
	// without re-encoding the payload, and returns the destination URI.
	// Copy is idempotent: repeating it is a no-op from the caller's view.
	Copy(ctx context.Context, srcBucket, srcName, dstBucket, dstName string) (string, error)
	// List returns every object under bucket whose name has the given
	// prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectRef, error)
}
