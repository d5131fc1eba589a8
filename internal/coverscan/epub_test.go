package coverscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func epubBytes(t *testing.T, opf string, extra map[string][]byte) []byte {
	t.Helper()
	files := map[string][]byte{
		"mimetype":               []byte("application/epub+zip"),
		"META-INF/container.xml": []byte(testContainer),
		"OEBPS/content.opf":      []byte(opf),
	}
	order := []string{"mimetype", "META-INF/container.xml", "OEBPS/content.opf"}
	for name, data := range extra {
		files[name] = data
		order = append(order, name)
	}
	return zipBytes(t, files, order...)
}

func TestExtractImageEPUB(t *testing.T) {
	cover := pngBytes(t)
	other := jpegBytes(t)

	tests := []struct {
		name string
		opf  string
	}{
		{
			name: "epub2 cover meta",
			opf: `<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata><meta name="cover" content="cover-img"/></metadata>
  <manifest>
    <item id="art" href="images/art.jpg" media-type="image/jpeg"/>
    <item id="cover-img" href="images/cover.png" media-type="image/png"/>
  </manifest>
</package>`,
		},
		{
			name: "epub3 cover-image property",
			opf: `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
    <item id="art" href="images/art.jpg" media-type="image/jpeg"/>
    <item id="c" href="images/cover.png" media-type="image/png" properties="cover-image"/>
  </manifest>
</package>`,
		},
		{
			name: "cover id",
			opf: `<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata/>
  <manifest>
    <item id="art" href="images/art.jpg" media-type="image/jpeg"/>
    <item id="Cover" href="images/cover.png" media-type="image/png"/>
  </manifest>
</package>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := epubBytes(t, tt.opf, map[string][]byte{
				"OEBPS/images/art.jpg":   other,
				"OEBPS/images/cover.png": cover,
			})

			img, err := ExtractImage("book.epub", data)
			require.NoError(t, err)
			assert.Equal(t, "image/png", img.MIMEType)
			assert.Equal(t, cover, img.Data)
		})
	}
}

func TestExtractImageEPUBWithoutCover(t *testing.T) {
	data := epubBytes(t, `<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata/>
  <manifest><item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
</package>`, nil)

	_, err := ExtractImage("book.epub", data)
	assert.ErrorIs(t, err, ErrUnsupported)
}
