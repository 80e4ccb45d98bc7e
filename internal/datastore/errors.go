package datastore

import "github.com/yardwatch/yardwatch/internal/errors"

// Sentinel errors for repository lookups. Returned errors wrap these and
// carry CategoryNotFound, so both errors.Is and errors.IsNotFound work.
var (
	ErrCameraNotFound        = errors.NewStd("camera not found")
	ErrRecordingNotFound     = errors.NewStd("recording not found")
	ErrDetectionTypeNotFound = errors.NewStd("detection type not found")
	ErrZoneNotFound          = errors.NewStd("zone not found")
)

func notFound(sentinel error, key string, id uint) error {
	return errors.New(sentinel).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context(key, id).
		Build()
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
