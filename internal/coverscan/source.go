// Package coverscan reads bibliographic data off a cover image. Uploads may
// be images, PDFs, EPUBs or comic archives; the cover is pulled out first
// and then handed to an image-capable language model.
package coverscan

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nwaples/rardecode/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrUnsupported is returned for uploads that carry no usable cover image
var ErrUnsupported = errors.New("unsupported cover upload")

// Image is an extracted cover image
type Image struct {
	Data     []byte
	MIMEType string
}

// Format is the short image format ("jpeg", "png", ...)
func (i *Image) Format() string {
	return strings.TrimPrefix(i.MIMEType, "image/")
}

// Passed through as-is; anything else inside an archive is skipped
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ExtractImage returns the cover image of an upload. Images pass through,
// PDFs yield the largest image on page 1, EPUBs their declared cover, CBZ
// and CBR archives their first image by name.
func ExtractImage(filename string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupported)
	}

	mt := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case mt.Is("image/jpeg"), mt.Is("image/png"), mt.Is("image/gif"), mt.Is("image/webp"):
		return &Image{Data: data, MIMEType: mt.String()}, nil
	case mt.Is("application/pdf"):
		return extractPDF(data)
	case mt.Is("application/epub+zip") || ext == ".epub":
		return extractEPUB(data)
	case mt.Is("application/zip") || ext == ".cbz":
		return extractZip(data)
	case mt.Is("application/x-rar-compressed") || ext == ".cbr":
		return extractRar(data)
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, filename, mt.String())
}

func extractPDF(data []byte) (*Image, error) {
	pageMaps, err := api.ExtractImagesRaw(bytes.NewReader(data), []string{"1"}, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to extract PDF images: %w", err)
	}

	// The largest image on the first page is taken as the cover
	var best []byte
	for _, pageMap := range pageMaps {
		for _, img := range pageMap {
			b, err := io.ReadAll(img)
			if err != nil {
				continue
			}
			if len(b) > len(best) {
				best = b
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no images on first PDF page", ErrUnsupported)
	}
	return detected(best)
}

func extractZip(data []byte) (*Image, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open CBZ: %w", err)
	}

	var pages []*zip.File
	for _, f := range r.File {
		if isPage(f.Name) {
			pages = append(pages, f)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no images in CBZ", ErrUnsupported)
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Name < pages[j].Name
	})

	rc, err := pages[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return withType(b, pages[0].Name), nil
}

// extractRar makes a single pass, keeping the lowest-named image read so far
func extractRar(data []byte) (*Image, error) {
	r, err := rardecode.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open CBR: %w", err)
	}

	var name string
	var best []byte
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CBR: %w", err)
		}
		if header.IsDir || !isPage(header.Name) {
			continue
		}
		if best != nil && header.Name >= name {
			continue
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		name, best = header.Name, b
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no images in CBR", ErrUnsupported)
	}
	return withType(best, name), nil
}

func isPage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := imageTypes[ext]
	return ok && !strings.HasPrefix(filepath.Base(name), ".")
}

func withType(data []byte, name string) *Image {
	return &Image{Data: data, MIMEType: imageTypes[strings.ToLower(filepath.Ext(name))]}
}

// detected sniffs the type of an embedded image, defaulting to JPEG
func detected(data []byte) (*Image, error) {
	mt := mimetype.Detect(data)
	for _, t := range imageTypes {
		if mt.Is(t) {
			return &Image{Data: data, MIMEType: t}, nil
		}
	}
	if strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: embedded %s image", ErrUnsupported, mt.String())
	}
	return &Image{Data: data, MIMEType: "image/jpeg"}, nil
}
