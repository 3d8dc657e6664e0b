package store

import "errors"

var (
	// ErrNotFound is returned when no invoice header matches a transaction number.
	ErrNotFound = errors.New("invoice not found")
	// ErrWatermarkNotFound is returned when no watermark row is provisioned
	// for a job. Watermark rows are created out of band, never automatically.
	ErrWatermarkNotFound = errors.New("watermark not provisioned for job")
)
