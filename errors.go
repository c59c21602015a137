package diskette

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DiskError is the error type returned by the image loader, encoder, and file
// helpers. Every DiskError is rooted in one of the sentinel values below, so
// callers can test for a failure class with [errors.Is].
type DiskError interface {
	error
	WithMessage(message string) DiskError
	Wrap(err error) DiskError
}

type baseDiskError string

const rootError = baseDiskError("")

var ErrImageTooSmall = rootError.WithMessage("Image too small")
var ErrInvalidGeometry = rootError.WithMessage("Invalid track or side count")
var ErrZeroTrackSize = rootError.WithMessage("Zero track size")
var ErrNotContainer = rootError.WithMessage("Not a DSK container")
var ErrTooManySectors = rootError.WithMessage("Too many sectors in track")
var ErrTrackTooLarge = rootError.WithMessage("Track too large")
var ErrUnknownGeometry = rootError.WithMessage("Unknown disk geometry")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")

func (e baseDiskError) Error() string {
	return string(e)
}

func (e baseDiskError) WithMessage(message string) DiskError {
	return customDiskError{
		message:       message,
		originalError: e,
	}
}

func (e baseDiskError) Wrap(err error) DiskError {
	return customDiskError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDiskError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDiskError) Error() string {
	return e.message
}

func (e customDiskError) WithMessage(message string) DiskError {
	return customDiskError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDiskError) Wrap(err error) DiskError {
	return customDiskError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDiskError) Unwrap() error {
	return e.originalError
}
