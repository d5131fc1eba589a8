package coverscan

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// epubContainer is META-INF/container.xml
type epubContainer struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// epubPackage is the part of the OPF document naming the cover
type epubPackage struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
}

// extractEPUB returns the cover declared by the package document
func extractEPUB(data []byte) (*Image, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}

	var container epubContainer
	if err := decodeXML(r, "META-INF/container.xml", &container); err != nil {
		return nil, fmt.Errorf("failed to read EPUB container: %w", err)
	}
	if len(container.RootFiles) == 0 {
		return nil, fmt.Errorf("%w: EPUB without package document", ErrUnsupported)
	}

	opfPath := container.RootFiles[0].FullPath
	var pkg epubPackage
	if err := decodeXML(r, opfPath, &pkg); err != nil {
		return nil, fmt.Errorf("failed to read EPUB package: %w", err)
	}

	href, mediaType := coverHref(&pkg)
	if href == "" {
		return nil, fmt.Errorf("%w: EPUB declares no cover", ErrUnsupported)
	}
	if dir := path.Dir(opfPath); dir != "." {
		href = path.Join(dir, href)
	}

	rc, err := openZipFile(r, href)
	if err != nil {
		return nil, fmt.Errorf("%w: EPUB cover %s missing", ErrUnsupported, href)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read EPUB cover: %w", err)
	}
	if _, ok := imageTypes[strings.ToLower(path.Ext(href))]; ok {
		return withType(b, href), nil
	}
	if strings.HasPrefix(mediaType, "image/") {
		return detected(b)
	}
	return nil, fmt.Errorf("%w: EPUB cover is %s", ErrUnsupported, mediaType)
}

// coverHref finds the cover item: the EPUB 2 cover meta, then the EPUB 3
// cover-image property, then any image whose id mentions "cover"
func coverHref(pkg *epubPackage) (string, string) {
	items := pkg.Manifest.Items

	for _, m := range pkg.Metadata.Meta {
		if m.Name != "cover" {
			continue
		}
		for _, item := range items {
			if item.ID == m.Content {
				return item.Href, item.MediaType
			}
		}
	}
	for _, item := range items {
		if strings.Contains(item.Properties, "cover-image") {
			return item.Href, item.MediaType
		}
	}
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.ID), "cover") && strings.HasPrefix(item.MediaType, "image/") {
			return item.Href, item.MediaType
		}
	}
	return "", ""
}

func openZipFile(r *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range r.File {
		if f.Name == name || strings.EqualFold(f.Name, name) {
			return f.Open()
		}
	}
	return nil, os.ErrNotExist
}

func decodeXML(r *zip.Reader, name string, v any) error {
	rc, err := openZipFile(r, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}
