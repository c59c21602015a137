package imagefile_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/dargueta/diskette/imagefile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRLE8__Basic(t *testing.T) {
	tests := []struct {
		Input          []byte
		ExpectedOutput []byte
		Name           string
	}{
		{[]byte{}, []byte{}, "empty"},
		{[]byte{4, 4}, []byte{4, 4, 0}, "run with two only"},
		{[]byte{0, 1, 2, 3, 4}, []byte{0, 1, 2, 3, 4}, "no runs"},
		{[]byte{6, 1, 3, 0, 0}, []byte{6, 1, 3, 0, 0, 0}, "two at end"},
		{[]byte{6, 1, 0, 0, 0}, []byte{6, 1, 0, 0, 1}, "three at end"},
		{[]byte{9, 5, 5, 5, 5, 5, 3, 7}, []byte{9, 5, 5, 3, 3, 7}, "short run"},
		{
			[]byte{9, 5, 5, 5, 5, 5, 5, 3, 3, 3, 3, 7, 2, 6},
			[]byte{9, 5, 5, 4, 3, 3, 2, 7, 2, 6},
			"adjacent runs",
		},
		{
			bytes.Repeat([]byte{0xe5}, 1024),
			[]byte{0xe5, 0xe5, 255, 0xe5, 0xe5, 255, 0xe5, 0xe5, 255, 0xe5, 0xe5, 251},
			"filler sectors",
		},
		{bytes.Repeat([]byte{8}, 257), []byte{8, 8, 255}, "257"},
		{bytes.Repeat([]byte{8}, 258), []byte{8, 8, 255, 8}, "258"},
		{bytes.Repeat([]byte{8}, 259), []byte{8, 8, 255, 8, 8, 0}, "259"},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			assert.Equal(t, test.ExpectedOutput, imagefile.AppendRLE8([]byte{}, test.Input))
		})
	}
}

func TestRLE8RoundTrip(t *testing.T) {
	random := make([]byte, 1852)
	_, err := rand.Read(random)
	require.NoError(t, err)

	tests := []struct {
		Name string
		Data []byte
	}{
		{"completely random", random},
		{"entirely nulls", make([]byte, 571)},
		{"entirely non-null run", bytes.Repeat([]byte{182}, 934)},
		{"empty", []byte{}},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			encoded := imagefile.AppendRLE8(nil, test.Data)
			t.Logf("encoded %d to %d", len(test.Data), len(encoded))

			decoded, err := imagefile.DecodeRLE8(bytes.NewReader(encoded), len(test.Data))
			require.NoError(t, err)
			assert.Equal(t, len(test.Data), len(decoded))
			assert.True(t, bytes.Equal(test.Data, decoded), "decoded data doesn't match")
		})
	}
}

func TestDecodeRLE8__StopsAtBlockSize(t *testing.T) {
	first := bytes.Repeat([]byte{0xe5}, 512)
	second := []byte{1, 2, 2, 3}
	stream := imagefile.AppendRLE8(imagefile.AppendRLE8(nil, first), second)
	source := bytes.NewReader(stream)

	decoded, err := imagefile.DecodeRLE8(source, len(first))
	require.NoError(t, err)
	assert.Equal(t, first, decoded)
	assert.Equal(t, 6, int(source.Size())-source.Len(), "only the first block's groups are consumed")

	decoded, err = imagefile.DecodeRLE8(source, len(second))
	require.NoError(t, err)
	assert.Equal(t, second, decoded)
	assert.Zero(t, source.Len())
}

func TestDecodeRLE8__MissingRepeatCount(t *testing.T) {
	_, err := imagefile.DecodeRLE8(bytes.NewReader([]byte{9, 1, 4, 4}), 16)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeRLE8__ShortBlock(t *testing.T) {
	_, err := imagefile.DecodeRLE8(bytes.NewReader([]byte{9, 1, 4}), 16)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeRLE8__RunOverflowsBlock(t *testing.T) {
	_, err := imagefile.DecodeRLE8(bytes.NewReader([]byte{7, 7, 20}), 8)
	assert.ErrorContains(t, err, "overflows")
}
