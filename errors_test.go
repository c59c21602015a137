package diskette_test

import (
	"errors"
	"io"
	"testing"

	"github.com/dargueta/diskette"
	"github.com/stretchr/testify/assert"
)

func TestDiskErrorWithMessage(t *testing.T) {
	newErr := diskette.ErrImageTooSmall.WithMessage("got 12 bytes")
	assert.Equal(
		t, "Image too small: got 12 bytes", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, diskette.ErrImageTooSmall)
	assert.NotErrorIs(t, newErr, diskette.ErrZeroTrackSize)
}

func TestDiskErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := diskette.ErrIOFailed.Wrap(originalErr)
	expectedMessage := "Input/output error: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, diskette.ErrIOFailed, "sentinel error not set as parent")
}

func TestDiskErrorWrap__Chained(t *testing.T) {
	newErr := diskette.ErrNotContainer.WithMessage("bad signature").Wrap(io.ErrUnexpectedEOF)

	assert.Equal(
		t,
		"Not a DSK container: bad signature: unexpected EOF",
		newErr.Error(),
	)
	assert.ErrorIs(t, newErr, diskette.ErrNotContainer)
	assert.ErrorIs(t, newErr, io.ErrUnexpectedEOF)
}
