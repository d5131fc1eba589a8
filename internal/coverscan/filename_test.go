package coverscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     FilenameHint
	}{
		{"Dune (1965).jpg", FilenameHint{Title: "Dune", Year: 1965}},
		{"uploads/The_Left_Hand_of_Darkness [Jan 1969].png", FilenameHint{Title: "The Left Hand of Darkness", Year: 1969}},
		{"Saga 001 (Digital).cbz", FilenameHint{Title: "Saga 001"}},
		{"1984.pdf", FilenameHint{Title: "1984"}},
		{"IMG_0042.jpg", FilenameHint{}},
		{"scan-3.png", FilenameHint{}},
		{"Der Process -.jpg", FilenameHint{Title: "Der Process"}},
		{"", FilenameHint{}},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilename(tt.filename))
		})
	}
}
