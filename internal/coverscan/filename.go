package coverscan

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FilenameHint is what an upload's file name says about the book. It fills
// gaps the model leaves.
type FilenameHint struct {
	Title string
	Year  int
}

var (
	// (2020), [2020], (Jan 2020)
	hintYearPattern = regexp.MustCompile(`[\(\[](?:(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+)?(\d{4})[\)\]]`)

	hintParenPattern = regexp.MustCompile(`[\(\[][^\)\]]*[\)\]]`)
	hintSpacePattern = regexp.MustCompile(`[\s_]+`)
	hintDashPattern  = regexp.MustCompile(`\s*[-–]\s*$`)

	// scanner and camera names carry no title
	hintNoisePattern = regexp.MustCompile(`(?i)^((img|dsc|scan|cover|image|photo)[\s\-]*\d*)?$`)
)

// ParseFilename cleans an upload name into a title and year hint
func ParseFilename(filename string) FilenameHint {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var hint FilenameHint
	if m := hintYearPattern.FindStringSubmatch(name); len(m) > 1 {
		if y, err := strconv.Atoi(m[1]); err == nil && y >= 1450 && y <= 2100 {
			hint.Year = y
		}
	}

	name = hintParenPattern.ReplaceAllString(name, "")
	name = hintSpacePattern.ReplaceAllString(name, " ")
	name = hintDashPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if !hintNoisePattern.MatchString(name) {
		hint.Title = name
	}
	return hint
}
