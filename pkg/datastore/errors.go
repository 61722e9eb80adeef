package datastore

import "errors"

var (
	ErrInvalidConfig      = errors.New("datastore: invalid configuration")
	ErrFailedToLoadConfig = errors.New("datastore: failed to load AWS config")
	ErrAccessDenied       = errors.New("datastore: access denied")
	ErrServiceUnavailable = errors.New("datastore: service unavailable")
	ErrUploadFailed       = errors.New("datastore: upload failed")
	ErrDownloadFailed     = errors.New("datastore: download failed")
)
