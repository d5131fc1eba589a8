package coverscan

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 6))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractImagePassthrough(t *testing.T) {
	pngData := pngBytes(t)
	jpegData := jpegBytes(t)

	tests := []struct {
		name     string
		filename string
		data     []byte
		mime     string
	}{
		{"png", "cover.png", pngData, "image/png"},
		{"jpeg", "cover.jpg", jpegData, "image/jpeg"},
		{"misnamed jpeg", "cover.png", jpegData, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ExtractImage(tt.filename, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.mime, img.MIMEType)
			assert.Equal(t, tt.data, img.Data)
		})
	}
}

func TestExtractImageCBZ(t *testing.T) {
	first := jpegBytes(t)
	second := pngBytes(t)
	data := zipBytes(t, map[string][]byte{
		"ComicInfo.xml":   []byte("<ComicInfo/>"),
		"pages/02.png":    second,
		"pages/.01.png":   second,
		"pages/01.jpg":    first,
		"pages/notes.txt": []byte("hello"),
	}, "ComicInfo.xml", "pages/02.png", "pages/.01.png", "pages/01.jpg", "pages/notes.txt")

	img, err := ExtractImage("Saga 001.cbz", data)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, "jpeg", img.Format())
	assert.Equal(t, first, img.Data)
}

func TestExtractImageRejects(t *testing.T) {
	noImages := zipBytes(t, map[string][]byte{"readme.txt": []byte("text")}, "readme.txt")

	tests := []struct {
		name        string
		filename    string
		data        []byte
		unsupported bool
	}{
		{"empty", "cover.jpg", nil, true},
		{"plain text", "notes.txt", []byte("just some text"), true},
		{"archive without images", "empty.cbz", noImages, true},
		{"broken pdf", "book.pdf", []byte("%PDF-1.7\nnot really a pdf"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractImage(tt.filename, tt.data)
			require.Error(t, err)
			if tt.unsupported {
				assert.ErrorIs(t, err, ErrUnsupported)
			}
		})
	}
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.NotEqual(t, HashBytes([]byte("a")), HashBytes([]byte("b")))
}
