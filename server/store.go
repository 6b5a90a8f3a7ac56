package server

import (
	"context"
	"encoding/json"
	"time"
)

// Record represents a user record in the key-value store. ID, Name, Email and
// the timestamps are the known fields; anything else the caller sends is kept
// in Extra and flattened back out on marshalling.
type Record struct {
	ID        string
	Name      string
	Email     string
	Extra     map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// recordTimeFormat keeps enough precision that updatedAt strictly advances
// between back-to-back writes.
const recordTimeFormat = time.RFC3339Nano

// MarshalJSON flattens Extra into the top-level object.
func (r *Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Extra)+5)
	for k, v := range r.Extra {
		m[k] = v
	}
	m["id"] = r.ID
	m["name"] = r.Name
	m["email"] = r.Email
	m["createdAt"] = r.CreatedAt.UTC().Format(recordTimeFormat)
	m["updatedAt"] = r.UpdatedAt.UTC().Format(recordTimeFormat)
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON: known fields are lifted into
// the struct, everything else lands in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rec, err := RecordFromMap(m)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// RecordFromMap builds a Record from a decoded JSON object.
func RecordFromMap(m map[string]interface{}) (*Record, error) {
	rec := &Record{}
	for k, v := range m {
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				rec.ID = s
			}
		case "name":
			if s, ok := v.(string); ok {
				rec.Name = s
			}
		case "email":
			if s, ok := v.(string); ok {
				rec.Email = s
			}
		case "createdAt":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(recordTimeFormat, s); err == nil {
					rec.CreatedAt = t
				}
			}
		case "updatedAt":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(recordTimeFormat, s); err == nil {
					rec.UpdatedAt = t
				}
			}
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]interface{})
			}
			rec.Extra[k] = v
		}
	}
	return rec, nil
}

// Clone returns a deep-enough copy for handing across the store boundary.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Extra != nil {
		c.Extra = make(map[string]interface{}, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// ScanResult is the envelope returned by Store.Scan. Count and ScannedCount
// report the full table size; Items may be truncated by the scan limit.
type ScanResult struct {
	Items        []*Record
	Count        int
	ScannedCount int
}

// Store defines the key-value store operations the router depends on.
// Get returns (nil, nil) for a missing id; absence is not an error.
type Store interface {
	Put(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Scan(ctx context.Context, limit int) (*ScanResult, error)
	Update(ctx context.Context, id string, mutation map[string]interface{}) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// Object is a stored blob together with its metadata.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	LastModified time.Time
	Size         int64
}

// ObjectInfo describes one entry in a blob listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`
	Size         int64     `json:"size"`
	StorageClass string    `json:"storageClass"`
}

// ListResult is the envelope returned by BlobStore.List. KeyCount is the
// total number of matches; Objects may be truncated by maxKeys.
type ListResult struct {
	Objects  []ObjectInfo
	KeyCount int
}

// BlobStore defines the object store operations the router depends on.
// Get surfaces a *NotFoundError for a missing bucket or key; List on a
// missing bucket returns an empty result instead.
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (etag string, err error)
	Get(ctx context.Context, bucket, key string) (*Object, error)
	List(ctx context.Context, bucket, prefix string, maxKeys int) (*ListResult, error)
	Delete(ctx context.Context, bucket, key string) error
}
