// Package memstore is an in-memory ports.ObjectStore double, used by every
// stage's tests (spec §9: "interface abstraction ... so tests can
// substitute in-memory doubles"). It also doubles as a tiny reference
// implementation of the idempotency contract: Put/Copy are safe to repeat.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/invoiceflow/pipeline/internal/kernel/ports"
)

type object struct {
	data        []byte
	contentType string
}

// Store is a concurrency-safe, process-local ObjectStore.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object // key: bucket + "/" + name
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

var _ ports.ObjectStore = (*Store)(nil)

func key(bucket, name string) string { return bucket + "/" + name }

func (s *Store) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key(bucket, name)]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *Store) Put(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key(bucket, name)] = object{data: cp, contentType: contentType}
	return "mem://" + bucket + "/" + name, nil
}

func (s *Store) Copy(ctx context.Context, srcBucket, srcName, dstBucket, dstName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key(srcBucket, srcName)]
	if !ok {
		return "", ports.ErrNotFound
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	s.objects[key(dstBucket, dstName)] = object{data: cp, contentType: obj.contentType}
	return "mem://" + dstBucket + "/" + dstName, nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.ObjectRef
	bucketPrefix := key(bucket, "")
	fullPrefix := bucketPrefix + prefix
	for k, obj := range s.objects {
		if !strings.HasPrefix(k, fullPrefix) {
			continue
		}
		name := strings.TrimPrefix(k, bucketPrefix)
		out = append(out, ports.ObjectRef{Bucket: bucket, Name: name, Size: int64(len(obj.data))})
	}
	return out, nil
}

// Exists reports whether bucket/name is present, a convenience used by
// stage tests asserting idempotent writes without going through Get.
func (s *Store) Exists(bucket, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key(bucket, name)]
	return ok
}
