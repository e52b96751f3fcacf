package services

import "errors"

// Task errors
var (
	ErrTaskNotFound = errors.New("task: not found")
	ErrTaskExists   = errors.New("task: id already exists")
)

// Download submission errors
var (
	ErrMissingURL        = errors.New("download: no url provided")
	ErrInvalidURL        = errors.New("download: invalid url")
	ErrUnsupportedFormat = errors.New("download: unsupported audio format")
	ErrInvalidBitrate    = errors.New("download: invalid bitrate")
	ErrQueueFull         = errors.New("download: queue is full")
	ErrWorkerStopped     = errors.New("download: worker is not running")
)

// File store errors
var (
	ErrPathTraversal = errors.New("files: invalid file path")
	ErrFileNotFound  = errors.New("files: not found")
)

// Worker outcome errors, recorded on the task as its error detail.
var (
	ErrIdleTimeout    = errors.New("worker: download timed out, no output received")
	ErrOverallTimeout = errors.New("worker: download exceeded the maximum duration")
	ErrNoOutputFiles  = errors.New("worker: no output files found")
	ErrProcessFailed  = errors.New("worker: process failed")
	ErrJobAborted     = errors.New("worker: job aborted during shutdown")
)
