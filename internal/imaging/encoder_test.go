package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCapture renders a small gradient PNG standing in for a raw browser
// capture.
func testCapture(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
	}{
		{"", DefaultFormat},
		{"webp", FormatWebP},
		{"WEBP", FormatWebP},
		{"jpeg", FormatJPEG},
		{"jpg", FormatJPEG},
		{"png", FormatPNG},
		{" png ", FormatPNG},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	for _, in := range []string{"bmp", "gif", "tiff", "svg"} {
		_, err := ParseFormat(in)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, "input %q", in)
	}
}

func TestEncodeMagicBytesPerFormat(t *testing.T) {
	capture := testCapture(t, 64, 64)

	cases := []struct {
		format Format
		check  func(t *testing.T, data []byte)
	}{
		{FormatPNG, func(t *testing.T, data []byte) {
			assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
		}},
		{FormatJPEG, func(t *testing.T, data []byte) {
			assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data[:3])
		}},
		{FormatWebP, func(t *testing.T, data []byte) {
			assert.Equal(t, []byte("RIFF"), data[:4])
			assert.Equal(t, []byte("WEBP"), data[8:12])
		}},
	}
	for _, tc := range cases {
		t.Run(string(tc.format), func(t *testing.T) {
			encoded, err := Encode(capture, 64, 64, tc.format)
			require.NoError(t, err)
			require.NotEmpty(t, encoded.Data)
			assert.Equal(t, tc.format.ContentType(), encoded.ContentType)
			tc.check(t, encoded.Data)
		})
	}
}

func TestEncodeResizesToExactRequestedDimensions(t *testing.T) {
	// Captured viewport differs from the requested output in both
	// dimensions and aspect ratio; output dimensions are authoritative.
	capture := testCapture(t, 100, 50)

	encoded, err := Encode(capture, 320, 200, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, 320, encoded.Width)
	assert.Equal(t, 200, encoded.Height)

	decoded, err := png.Decode(bytes.NewReader(encoded.Data))
	require.NoError(t, err)
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 200, decoded.Bounds().Dy())
}

func TestEncodeWebPDecodesToRequestedDimensions(t *testing.T) {
	capture := testCapture(t, 640, 400)

	encoded, err := Encode(capture, 320, 200, FormatWebP)
	require.NoError(t, err)

	decoded, err := webp.Decode(bytes.NewReader(encoded.Data), &decoder.Options{})
	require.NoError(t, err)
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 200, decoded.Bounds().Dy())
}

func TestEncodeSkipsResizeWhenDimensionsMatch(t *testing.T) {
	capture := testCapture(t, 320, 200)

	encoded, err := Encode(capture, 320, 200, FormatPNG)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(encoded.Data))
	require.NoError(t, err)
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 200, decoded.Bounds().Dy())
}

func TestEncodeEmptyCaptureFails(t *testing.T) {
	_, err := Encode(nil, 320, 200, FormatPNG)
	assert.ErrorIs(t, err, ErrEncodingFailed)
}

func TestEncodeCorruptCaptureFails(t *testing.T) {
	_, err := Encode([]byte("this is not an image"), 320, 200, FormatPNG)
	assert.ErrorIs(t, err, ErrEncodingFailed)
}

func TestEncodeInvalidTargetSizeFails(t *testing.T) {
	capture := testCapture(t, 10, 10)
	_, err := Encode(capture, 0, 200, FormatPNG)
	assert.ErrorIs(t, err, ErrEncodingFailed)
	_, err = Encode(capture, 320, -1, FormatPNG)
	assert.ErrorIs(t, err, ErrEncodingFailed)
}

func TestEncodeUnknownFormatFails(t *testing.T) {
	capture := testCapture(t, 10, 10)
	_, err := Encode(capture, 10, 10, Format("bmp"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
