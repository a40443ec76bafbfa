package codec

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeJPEG(t *testing.T) {
	img := testImage(64, 48)

	data, err := EncodeJPEG(img, 90)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	decoded, err := DecodeJPEG(data)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestEncodeJPEG_QualityRange(t *testing.T) {
	img := testImage(8, 8)

	_, err := EncodeJPEG(img, 0)
	assert.Error(t, err)
	_, err = EncodeJPEG(img, 101)
	assert.Error(t, err)
}

func TestEncodeJPEG_LowerQualityIsSmaller(t *testing.T) {
	img := testImage(320, 240)

	hi, err := EncodeJPEG(img, 90)
	require.NoError(t, err)
	lo, err := EncodeJPEG(img, 10)
	require.NoError(t, err)

	assert.Less(t, len(lo), len(hi))
}

func TestParseDatagram(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff}
	data := append(BuildHeader("A", 1718135772191843820), payload...)

	cam, id, body, err := ParseDatagram(data)
	require.NoError(t, err)
	assert.Equal(t, "A", cam)
	assert.Equal(t, int64(1718135772191843820), id)
	assert.Equal(t, payload, body)
}

func TestParseDatagram_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"no separator", []byte("Ajpegbytes")},
		{"missing second separator", []byte("A:12345")},
		{"empty tag", []byte(":123:x")},
		{"tag too long", []byte("CAMERA_A_LONG:1:x")},
		{"non decimal id", []byte("A:12x45:x")},
		{"empty id", []byte("A::x")},
		{"id too long", []byte("A:123456789012345678901:x")},
		{"non ascii tag", append([]byte{0x01, 0x02}, []byte(":1:x")...)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := ParseDatagram(tc.data)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestFrameCloneIsDeep(t *testing.T) {
	f := NewFrame("A", testImage(16, 16), time.Now())
	c := f.Clone()

	c.Img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	assert.NotEqual(t, f.Img.RGBAAt(0, 0), c.Img.RGBAAt(0, 0))
	assert.Equal(t, f.ID, c.ID)
}

func TestFrameResize(t *testing.T) {
	f := NewFrame("A", testImage(64, 64), time.Now())

	r := f.Resize(32, 32)
	assert.Equal(t, 32, r.Width())
	assert.Equal(t, 32, r.Height())
	// Same size passes through without copying.
	same := f.Resize(64, 64)
	assert.Same(t, f, same)
}

func TestFrameCrop(t *testing.T) {
	f := NewFrame("A", testImage(64, 64), time.Now())

	crop := f.Crop(10, 10, 30, 40)
	require.NotNil(t, crop)
	assert.Equal(t, 20, crop.Bounds().Dx())
	assert.Equal(t, 30, crop.Bounds().Dy())

	// Out-of-bounds coordinates clamp instead of panicking.
	crop = f.Crop(-5, -5, 1000, 1000)
	require.NotNil(t, crop)
	assert.Equal(t, 64, crop.Bounds().Dx())

	assert.Nil(t, f.Crop(10, 10, 10, 10))
	assert.Nil(t, f.Crop(200, 200, 300, 300))
}
