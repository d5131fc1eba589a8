package coverscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
)

// Error codes reported by Scan
const (
	CodeKeyMissing  = "COVER_SCAN_KEY_MISSING"
	CodeError       = "COVER_SCAN_ERROR"
	CodeUnsupported = "COVER_SCAN_UNSUPPORTED"
)

// KeyName is the provider name the model API key is stored under
const KeyName = "gemini"

// Defaults applied when Options fields are zero
const (
	DefaultCacheSize = 128
	DefaultTimeout   = 30 * time.Second
)

// Model reads a cover image and answers with a JSON object
type Model interface {
	Describe(ctx context.Context, img *Image) (string, error)
	Name() string
	Close() error
}

// ModelFactory opens a Model for an API key
type ModelFactory func(ctx context.Context, apiKey string) (Model, error)

// Options configures a Scanner
type Options struct {
	Open      ModelFactory // defaults to Gemini(DefaultModel)
	CacheSize int
	Timeout   time.Duration
	Observer  providers.Observer
}

// Scanner turns cover uploads into cover_scan items
type Scanner struct {
	keys    providers.KeySource
	open    ModelFactory
	cache   *lru.Cache[string, candidate.Item]
	timeout time.Duration
	obs     providers.Observer
}

// NewScanner creates a scanner. The API key is looked up on every scan so
// keys saved at runtime apply immediately.
func NewScanner(keys providers.KeySource, opts Options) (*Scanner, error) {
	if opts.Open == nil {
		opts.Open = Gemini(DefaultModel)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	cache, err := lru.New[string, candidate.Item](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cover scan cache: %w", err)
	}
	return &Scanner{
		keys:    keys,
		open:    opts.Open,
		cache:   cache,
		timeout: opts.Timeout,
		obs:     opts.Observer,
	}, nil
}

// scanResult is the JSON object the model is asked for
type scanResult struct {
	Title     string          `json:"title"`
	Subtitle  string          `json:"subtitle"`
	Authors   []string        `json:"authors"`
	ISBN      string          `json:"isbn"`
	Year      json.RawMessage `json:"year"`
	Publisher string          `json:"publisher"`
}

// Scan extracts the cover of an upload and reads it into an item. Identical
// cover images are answered from the cache with a fresh item id.
func (s *Scanner) Scan(ctx context.Context, filename string, data []byte) (candidate.Item, error) {
	start := time.Now()
	item, err := s.scan(ctx, filename, data)
	elapsed := time.Since(start)

	if s.obs != nil {
		switch {
		case err == nil:
			s.obs.ObserveFetch(string(candidate.SourceCoverScan), providers.OutcomeOK, "", 1, elapsed)
		case providers.IsCanceled(err):
			s.obs.ObserveFetch(string(candidate.SourceCoverScan), providers.OutcomeCanceled, "", 0, elapsed)
		default:
			s.obs.ObserveFetch(string(candidate.SourceCoverScan), providers.OutcomeError, providers.CodeOf(err), 0, elapsed)
		}
	}
	return item, err
}

func (s *Scanner) scan(ctx context.Context, filename string, data []byte) (candidate.Item, error) {
	img, err := ExtractImage(filename, data)
	if err != nil {
		return candidate.Item{}, scanError(CodeUnsupported, "no cover image found in upload", err)
	}

	hash := HashBytes(img.Data)
	if cached, ok := s.cache.Get(hash); ok {
		slog.Debug("cover scan cache hit", "hash", hash)
		return withFreshID(cached), nil
	}

	key, err := s.keys.APIKey(ctx, KeyName)
	if err != nil {
		return candidate.Item{}, scanError(CodeError, "failed to load API key", err)
	}
	if key == "" {
		return candidate.Item{}, scanError(CodeKeyMissing, "no Gemini API key configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model, err := s.open(ctx, key)
	if err != nil {
		return candidate.Item{}, scanError(CodeError, "failed to open model", err)
	}
	defer model.Close()

	text, err := model.Describe(ctx, img)
	if err != nil {
		return candidate.Item{}, scanError(CodeError, "model request failed", err)
	}

	res, err := parseResult(text)
	if err != nil {
		slog.Warn("unreadable cover scan answer", "model", model.Name(), "error", err)
		return candidate.Item{}, scanError(CodeError, "unreadable model answer", err)
	}

	item, ok := buildItem(res, ParseFilename(filename), map[string]any{
		"imageHash": hash,
		"model":     model.Name(),
		"filename":  filename,
		"mimeType":  img.MIMEType,
	})
	if !ok {
		return candidate.Item{}, scanError(CodeError, "no title recognized on cover", nil)
	}

	s.cache.Add(hash, withFreshID(item))
	slog.Info("cover scanned", "title", item.Title, "authors", len(item.Authors), "model", model.Name())
	return item, nil
}

func scanError(code, msg string, err error) *providers.Error {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &providers.Error{
		Code:     code,
		Provider: string(candidate.SourceCoverScan),
		Message:  msg,
		Err:      err,
	}
}

var (
	fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	yearPattern  = regexp.MustCompile(`\b(\d{4})\b`)
	isbnStrip    = regexp.MustCompile(`[^0-9Xx]`)
)

// parseResult decodes the model answer, tolerating a markdown code fence
func parseResult(text string) (scanResult, error) {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	var res scanResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return scanResult{}, err
	}
	return res, nil
}

func parseYear(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	if m := yearPattern.FindStringSubmatch(s); len(m) > 1 {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return 0
}

// normalizeISBN keeps 10 and 13 character ISBNs only
func normalizeISBN(s string) string {
	s = strings.ToUpper(isbnStrip.ReplaceAllString(s, ""))
	if len(s) == 10 || len(s) == 13 {
		return s
	}
	return ""
}

// buildItem maps a model answer to an item, filling title and year from the
// file name when the cover gave none. It reports false without a title.
func buildItem(res scanResult, hint FilenameHint, payload map[string]any) (candidate.Item, bool) {
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = hint.Title
	}
	if title == "" {
		return candidate.Item{}, false
	}
	year := parseYear(res.Year)
	if year == 0 {
		year = hint.Year
	}
	if sub := strings.TrimSpace(res.Subtitle); sub != "" {
		payload["subtitle"] = sub
	}

	return candidate.NewItem(candidate.ItemFields{
		Title:      title,
		Authors:    candidate.NormalizeAuthors(res.Authors),
		ISBN:       normalizeISBN(res.ISBN),
		Year:       year,
		Publisher:  res.Publisher,
		Source:     candidate.SourceCoverScan,
		RawPayload: payload,
	}), true
}

func withFreshID(item candidate.Item) candidate.Item {
	item.ItemID = uuid.NewString()
	item.RawPayload = maps.Clone(item.RawPayload)
	return item
}

// IsUnsupported reports whether err rejects the upload itself
func IsUnsupported(err error) bool {
	return providers.IsCode(err, CodeUnsupported) || errors.Is(err, ErrUnsupported)
}
