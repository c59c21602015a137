package dsk

import (
	"github.com/boljen/go-bitmap"
)

// splitWeakCopies separates the stored payload of a sector into the data that
// reads back and a map of unstable bytes.
//
// Extended images record a weak sector by storing several reads of it back to
// back, so its stored length is an exact multiple of its nominal size. Byte
// positions where the copies disagree are weak; the first copy is kept as the
// baseline. If every copy agrees the sector is merely oversized, and the raw
// payload is kept whole with no weak map. Payloads that aren't a multiple of
// the nominal size are kept as-is.
func splitWeakCopies(raw []byte, nominal int) ([]byte, bitmap.Bitmap) {
	if nominal <= 0 || len(raw) <= nominal || len(raw)%nominal != 0 {
		return raw, nil
	}

	numCopies := len(raw) / nominal
	weakMap := bitmap.New(nominal)
	hasWeak := false

	for i := 0; i < nominal; i++ {
		for c := 1; c < numCopies; c++ {
			if raw[i] != raw[c*nominal+i] {
				weakMap.Set(i, true)
				hasWeak = true
				break
			}
		}
	}

	if !hasWeak {
		return raw, nil
	}

	baseline := make([]byte, nominal)
	copy(baseline, raw[:nominal])
	return baseline, weakMap
}

// CountWeakBytes returns the number of unstable bytes in a sector.
func CountWeakBytes(sector *Sector) int {
	if sector.WeakMap == nil {
		return 0
	}

	count := 0
	for i := range sector.Data {
		if sector.WeakMap.Get(i) {
			count++
		}
	}
	return count
}
