package server

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel returned by caches on a miss.
var ErrNotFound = errors.New("not found")

// NotFound kinds mirror the object store's own error codes.
const (
	KindNoSuchBucket = "NoSuchBucket"
	KindNoSuchKey    = "NoSuchKey"
)

// NotFoundError reports a missing bucket or object key.
type NotFoundError struct {
	Kind   string
	Bucket string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Kind == KindNoSuchBucket {
		return fmt.Sprintf("%s: the specified bucket does not exist: %s", e.Kind, e.Bucket)
	}
	return fmt.Sprintf("%s: the specified key does not exist: %s", e.Kind, e.Key)
}

// IsNotFound reports whether err is a blob store NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError reports a caller-contract violation (missing or malformed
// input). The router maps it to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
