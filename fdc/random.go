package fdc

import (
	"math/rand"
	"time"
)

// RandomSource supplies the values returned for unstable bytes of weak and
// CRC-error sectors. *rand.Rand satisfies it.
type RandomSource interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

func newDefaultRandomSource() RandomSource {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func randomByte(source RandomSource) byte {
	return byte(source.Intn(256))
}
