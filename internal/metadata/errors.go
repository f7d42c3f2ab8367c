package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPublisher is returned when neither the record nor the AU yields a publisher.
	ErrNoPublisher = errors.New("no publisher for record")
	// ErrNoTitle is returned when a publication cannot be identified by name or identifier.
	ErrNoTitle = errors.New("publication has no title or identifiers")
	// ErrNoArticleType is returned for records whose item type cannot be determined.
	ErrNoArticleType = errors.New("record has no article type")
	// ErrNoAccessURL is returned for records without an access URL, which
	// identifies the item within its AU.
	ErrNoAccessURL = errors.New("record has no access url")
)

// MetadataError reports a malformed or inconsistent extracted record. It
// aborts only the record it describes.
type MetadataError struct {
	AccessURL string
	Reason    string
	Err       error
}

// NewMetadataError wraps err with the record it was raised for.
func NewMetadataError(rec Record, reason string, err error) *MetadataError {
	return &MetadataError{AccessURL: rec.AccessURL, Reason: reason, Err: err}
}

func (e *MetadataError) Error() string {
	msg := e.Reason
	if e.AccessURL != "" {
		msg = fmt.Sprintf("%s (access url %q)", msg, e.AccessURL)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// IsMetadataError reports whether err is, or wraps, a MetadataError.
func IsMetadataError(err error) bool {
	var me *MetadataError
	return errors.As(err, &me)
}
