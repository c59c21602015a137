package main

import (
	"testing"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/fdc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCommand__LengthChecked(t *testing.T) {
	controller := fdc.New(fdc.Options{})

	err := sendCommand(controller, fdc.CmdSeek, 0)
	assert.ErrorIs(t, err, diskette.ErrInvalidArgument)
	assert.Equal(t, fdc.PhaseIdle, controller.Phase(), "nothing may reach the controller")

	err = sendCommand(controller, fdc.CmdSenseInterruptStatus, 0)
	assert.ErrorIs(t, err, diskette.ErrInvalidArgument)

	err = sendCommand(controller, 0x1f)
	assert.ErrorIs(t, err, diskette.ErrInvalidArgument, "unknown commands have no length")
}

func TestSendCommand__SeekThenSenseInterrupt(t *testing.T) {
	controller := fdc.New(fdc.Options{})

	require.NoError(t, sendCommand(controller, fdc.CmdSeek, 1, 7))
	require.NoError(t, sendCommand(controller, fdc.CmdSenseInterruptStatus))
	assert.Equal(t, []byte{0x21, 7}, drainResult(controller))
	assert.Equal(t, fdc.PhaseIdle, controller.Phase())
}
