package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// defaultListMaxKeys caps List results when the caller does not pass maxKeys.
const defaultListMaxKeys = 1000

// MemoryBlobStore implements the BlobStore interface with nested in-process
// maps (bucket -> key -> object). Like MemoryStore it models a transient
// local double: buckets are created implicitly on first write and nothing
// survives a restart. Get mirrors real object-store semantics and fails on a
// missing bucket or key; List treats a missing bucket as an empty namespace.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*Object
	order   map[string][]string
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		buckets: make(map[string]map[string]*Object),
		order:   make(map[string][]string),
	}
}

// SeedSampleData loads the fixture objects the local mock ships with into
// the given bucket.
func (s *MemoryBlobStore) SeedSampleData(bucket string) {
	profile := []byte(`{"userId":1,"profilePicture":"https://example.com/pic1.jpg"}`)
	readme := []byte("Welcome to our application!")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, "users/profile-1.json", &Object{
		Key:          "users/profile-1.json",
		Body:         profile,
		ContentType:  "application/json",
		LastModified: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Size:         int64(len(profile)),
	})
	s.putLocked(bucket, "documents/readme.txt", &Object{
		Key:          "documents/readme.txt",
		Body:         readme,
		ContentType:  "text/plain",
		LastModified: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Size:         int64(len(readme)),
	})
}

// putLocked stores an object, creating the bucket if needed. Caller holds mu.
func (s *MemoryBlobStore) putLocked(bucket, key string, obj *Object) {
	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string]*Object)
		s.buckets[bucket] = objects
	}
	if _, exists := objects[key]; !exists {
		s.order[bucket] = append(s.order[bucket], key)
	}
	objects[key] = obj
}

// Put stores an object, creating the bucket implicitly and overwriting any
// prior content. The returned entity tag is opaque.
func (s *MemoryBlobStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	if bucket == "" || key == "" {
		return "", &ValidationError{Message: "bucket and key are required"}
	}
	if contentType == "" {
		contentType = "binary/octet-stream"
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, key, &Object{
		Key:          key,
		Body:         bodyCopy,
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
		Size:         int64(len(bodyCopy)),
	})
	return fmt.Sprintf("\"mock-etag-%d\"", time.Now().UnixNano()), nil
}

// Get retrieves an object. A missing bucket or key is an error, mirroring
// the real object store where a targeted read of an absent resource is
// exceptional.
func (s *MemoryBlobStore) Get(ctx context.Context, bucket, key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, &NotFoundError{Kind: KindNoSuchBucket, Bucket: bucket, Key: key}
	}
	obj, ok := objects[key]
	if !ok {
		return nil, &NotFoundError{Kind: KindNoSuchKey, Bucket: bucket, Key: key}
	}
	cp := *obj
	cp.Body = make([]byte, len(obj.Body))
	copy(cp.Body, obj.Body)
	return &cp, nil
}

// List returns all keys in the bucket that start with prefix, in insertion
// order, truncated to maxKeys. KeyCount reports the total match count before
// truncation. A missing bucket yields an empty listing, not an error.
func (s *MemoryBlobStore) List(ctx context.Context, bucket, prefix string, maxKeys int) (*ListResult, error) {
	if maxKeys <= 0 {
		maxKeys = defaultListMaxKeys
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return &ListResult{Objects: []ObjectInfo{}}, nil
	}

	matches := make([]ObjectInfo, 0, len(objects))
	for _, key := range s.order[bucket] {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		obj := objects[key]
		matches = append(matches, ObjectInfo{
			Key:          key,
			LastModified: obj.LastModified,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}

	total := len(matches)
	if len(matches) > maxKeys {
		matches = matches[:maxKeys]
	}
	return &ListResult{Objects: matches, KeyCount: total}, nil
}

// Delete removes the object if present. Deleting from a missing bucket or a
// missing key succeeds.
func (s *MemoryBlobStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil
	}
	if _, exists := objects[key]; exists {
		delete(objects, key)
		keys := s.order[bucket]
		for i, ordered := range keys {
			if ordered == key {
				s.order[bucket] = append(keys[:i], keys[i+1:]...)
				break
			}
		}
	}
	return nil
}
