package sandbox

import "errors"

var (
	ErrJobNotFound      = errors.New("task not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrInvalidName      = errors.New("invalid artifact name")
	ErrURLRequired      = errors.New("url required")
	ErrUnsupportedURL   = errors.New("unsupported url")
)
