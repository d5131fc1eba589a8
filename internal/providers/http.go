package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single provider request
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a response body is read
const maxBodySize = 8 << 20

// secretParams are query parameters whose values never leave the process
var secretParams = []string{"key", "api_key", "apikey", "token"}

// request describes one GET against a provider
type request struct {
	provider   string
	failCode   string // transport failures
	statusCode string // non-2xx responses
	url        string
	accept     string
	timeout    time.Duration
}

// response is a successful (2xx) provider response
type response struct {
	body   []byte
	status int
}

// newHTTPClient returns the client adapters use when none is injected
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
	}
}

// get performs the request with its own deadline. Provider failures come
// back as *Error; caller cancellation stays detectable via IsCanceled.
func get(ctx context.Context, client Doer, r request) (*response, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	safeURL := RedactURL(r.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, &Error{Code: r.failCode, Provider: r.provider, Message: "creating request", RequestURL: safeURL, Err: err}
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	req.Header.Set("User-Agent", "biblio/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Code: r.failCode, Provider: r.provider, Message: "request failed", RequestURL: safeURL, Err: redactError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Code: r.failCode, Provider: r.provider, Message: "reading response", RequestURL: safeURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Code:        r.statusCode,
			Provider:    r.provider,
			Message:     fmt.Sprintf("unexpected status: %d", resp.StatusCode),
			Status:      resp.StatusCode,
			StatusText:  http.StatusText(resp.StatusCode),
			BodySnippet: snippet(body),
			RequestURL:  safeURL,
		}
	}

	return &response{body: body, status: resp.StatusCode}, nil
}

// snippet returns at most bodySnippetLimit characters of body
func snippet(body []byte) string {
	runes := []rune(string(body))
	if len(runes) > bodySnippetLimit {
		runes = runes[:bodySnippetLimit]
	}
	return string(runes)
}

// RedactURL replaces secret query parameter values so URLs are safe to
// log and return to clients.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// redactError scrubs secrets from transport errors, which embed the URL
func redactError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return &url.Error{Op: ue.Op, URL: RedactURL(ue.URL), Err: ue.Err}
	}
	return err
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// extractYear returns the first 4-digit run in s, or 0
func extractYear(s string) int {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0
	}
	year, _ := strconv.Atoi(m)
	return year
}

// firstOrEmpty returns the first element or empty string
func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
