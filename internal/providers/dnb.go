package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/justyntemme/biblio/internal/candidate"
)

const dnbPageSize = 100

// DNBProvider queries the Deutsche Nationalbibliothek SRU interface and
// reads Dublin Core records.
type DNBProvider struct {
	client  Doer
	baseURL string
	timeout time.Duration
}

var _ Provider = (*DNBProvider)(nil)

// NewDNBProvider creates a DNB provider
func NewDNBProvider(opts Options) *DNBProvider {
	p := &DNBProvider{
		client:  opts.Client,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}
	if p.client == nil {
		p.client = newHTTPClient()
	}
	if p.baseURL == "" {
		p.baseURL = "https://services.dnb.de/sru/dnb"
	}
	return p
}

func (p *DNBProvider) Name() candidate.Source {
	return candidate.SourceDNB
}

func (p *DNBProvider) PageSize() int {
	return dnbPageSize
}

// Element names carry no namespace so they match regardless of the
// prefixes the server uses.
type sruResponse struct {
	XMLName         xml.Name        `xml:"searchRetrieveResponse"`
	NumberOfRecords int             `xml:"numberOfRecords"`
	Records         []sruRecord     `xml:"records>record"`
	Diagnostics     []sruDiagnostic `xml:"diagnostics>diagnostic"`
}

type sruRecord struct {
	RecordIdentifier string   `xml:"recordIdentifier"`
	RecordPosition   int      `xml:"recordPosition"`
	DC               dcRecord `xml:"recordData>dc"`
}

type sruDiagnostic struct {
	URI     string `xml:"uri"`
	Details string `xml:"details"`
	Message string `xml:"message"`
}

type dcRecord struct {
	Titles      []string       `xml:"title"`
	Creators    []string       `xml:"creator"`
	Publishers  []string       `xml:"publisher"`
	Dates       []string       `xml:"date"`
	Identifiers []dcIdentifier `xml:"identifier"`
	Languages   []string       `xml:"language"`
}

type dcIdentifier struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

var (
	dnbLinkPattern = regexp.MustCompile(`d-nb\.info/(\d+X?)`)
	rolePattern    = regexp.MustCompile(`\s*\[[^\]]*\]`)
	isbnStrip      = regexp.MustCompile(`[^0-9X]`)
)

// FetchPage searches titles starting at the zero-based offset. SRU
// positions are 1-based.
func (p *DNBProvider) FetchPage(ctx context.Context, title string, offset int) (*Page, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return emptyPage(dnbPageSize, offset), nil
	}

	params := url.Values{}
	params.Set("version", "1.1")
	params.Set("operation", "searchRetrieve")
	params.Set("query", "tit="+title)
	params.Set("recordSchema", "oai_dc")
	params.Set("maximumRecords", strconv.Itoa(dnbPageSize))
	params.Set("startRecord", strconv.Itoa(offset+1))
	requestURL := fmt.Sprintf("%s?%s", p.baseURL, params.Encode())

	resp, err := get(ctx, p.client, request{
		provider:   string(p.Name()),
		failCode:   CodeDNBError,
		statusCode: CodeDNBUnavailable,
		url:        requestURL,
		accept:     "application/xml",
		timeout:    p.timeout,
	})
	if err != nil {
		return nil, err
	}

	var data sruResponse
	if err := xml.Unmarshal(resp.body, &data); err != nil {
		return nil, &Error{
			Code:        CodeDNBBadResponse,
			Provider:    string(p.Name()),
			Message:     "decoding SRU response",
			Status:      resp.status,
			BodySnippet: snippet(resp.body),
			RequestURL:  requestURL,
			Err:         err,
		}
	}
	if len(data.Diagnostics) > 0 && len(data.Records) == 0 {
		d := data.Diagnostics[0]
		msg := strings.TrimSpace(d.Message + " " + d.Details)
		return nil, &Error{
			Code:        CodeDNBBadResponse,
			Provider:    string(p.Name()),
			Message:     "SRU diagnostic: " + msg,
			Status:      resp.status,
			BodySnippet: snippet(resp.body),
			RequestURL:  requestURL,
		}
	}

	items := make([]candidate.Item, 0, len(data.Records))
	for _, rec := range data.Records {
		if item, ok := p.convertRecord(rec); ok {
			items = append(items, item)
		}
	}

	return &Page{
		Items:      items,
		Returned:   len(data.Records),
		Total:      data.NumberOfRecords,
		TotalKnown: true,
		RequestURL: requestURL,
		Status:     resp.status,
		Limit:      dnbPageSize,
		Offset:     offset,
	}, nil
}

func (p *DNBProvider) convertRecord(rec sruRecord) (candidate.Item, bool) {
	dc := rec.DC
	title := strings.TrimSpace(firstOrEmpty(dc.Titles))
	if title == "" {
		return candidate.Item{}, false
	}

	names := make([]string, 0, len(dc.Creators))
	for _, c := range dc.Creators {
		names = append(names, invertCreator(c))
	}

	return candidate.NewItem(candidate.ItemFields{
		Title:      title,
		Authors:    candidate.NormalizeAuthors(names),
		ISBN:       findISBN(dc.Identifiers),
		Year:       extractYear(firstOrEmpty(dc.Dates)),
		Publisher:  firstOrEmpty(dc.Publishers),
		ExternalID: dnbExternalID(rec),
		Source:     p.Name(),
		RawPayload: map[string]any{
			"recordPosition":   rec.RecordPosition,
			"recordIdentifier": rec.RecordIdentifier,
			"creators":         dc.Creators,
			"languages":        dc.Languages,
		},
	}), true
}

// invertCreator rewrites catalog "Last, First [role]" names to
// "First Last". Names without a comma are returned trimmed.
func invertCreator(name string) string {
	name = strings.TrimSpace(rolePattern.ReplaceAllString(name, ""))
	last, first, ok := strings.Cut(name, ",")
	if !ok {
		return name
	}
	last = strings.TrimSpace(last)
	first = strings.TrimSpace(first)
	if first == "" {
		return last
	}
	return first + " " + last
}

// findISBN prefers identifiers typed as ISBN, then untyped ones. A value
// qualifies when a whitespace-separated token is 10 or 13 characters long
// after stripping everything except digits and X.
func findISBN(ids []dcIdentifier) string {
	for _, typed := range []bool{true, false} {
		for _, id := range ids {
			isISBN := strings.Contains(strings.ToUpper(id.Type), "ISBN")
			if typed != isISBN || (!typed && id.Type != "") {
				continue
			}
			for _, tok := range strings.Fields(id.Value) {
				digits := isbnStrip.ReplaceAllString(strings.ToUpper(tok), "")
				if len(digits) == 10 || len(digits) == 13 {
					return digits
				}
			}
		}
	}
	return ""
}

// dnbExternalID takes the id from a d-nb.info link, falling back to the
// SRU record identifier.
func dnbExternalID(rec sruRecord) string {
	for _, id := range rec.DC.Identifiers {
		if m := dnbLinkPattern.FindStringSubmatch(id.Value); m != nil {
			return m[1]
		}
	}
	if m := dnbLinkPattern.FindStringSubmatch(rec.RecordIdentifier); m != nil {
		return m[1]
	}
	return strings.TrimSpace(rec.RecordIdentifier)
}
