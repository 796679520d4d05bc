package domain

import "errors"

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrFetchFailed         = errors.New("facility fetch failed")
	ErrMapNotReady         = errors.New("map surface not ready")
	ErrInvalidRegion       = errors.New("invalid region")
	ErrNotFound            = errors.New("not found")
	ErrMissingID           = errors.New("record has no id")
)
