package editorial

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "hopper/0.1"

// Journal is the editorial system's record for one journal.
type Journal struct {
	Ref            string `json:"ref"`
	Title          string `json:"title"`
	AbbrevTitle    string `json:"abbrev_title"`
	NLMTitle       string `json:"nlm_title"`
	Publisher      string `json:"publisher"`
	ISSNPrint      string `json:"issn_print"`
	ISSNElectronic string `json:"issn_electronic"`
}

// Issue is one published issue of a journal.
type Issue struct {
	Ref           string   `json:"ref"`
	Label         string   `json:"label"`
	Year          string   `json:"year"`
	Volume        string   `json:"volume"`
	Number        string   `json:"number"`
	SupplVolume   string   `json:"suppl_volume"`
	SupplNumber   string   `json:"suppl_number"`
	SectionTitles []string `json:"section_titles"`
	// MonthStart/MonthEnd declare the publication window. MonthEnd is zero
	// for single-month issues and set for season-based ranges.
	MonthStart int `json:"month_start"`
	MonthEnd   int `json:"month_end"`
}

// IssueCriteria narrows an issue lookup to whatever identifying fields the
// article package carries.
type IssueCriteria struct {
	Year        string
	Volume      string
	Number      string
	SupplVolume string
	SupplNumber string
}

// Client is the lookup surface the validation pipeline depends on.
// Implementations must honor the context deadline; a hung lookup must not
// hang a worker.
type Client interface {
	// JournalByISSN returns nil when no journal matches.
	JournalByISSN(ctx context.Context, issn string) (*Journal, error)
	// FindIssue returns nil when no issue matches the criteria.
	FindIssue(ctx context.Context, journalRef string, criteria IssueCriteria) (*Issue, error)
	// IsRegisteredDOI reports whether the DOI resolves in the registry.
	IsRegisteredDOI(ctx context.Context, doi string) (bool, error)
}

// HTTPClient talks JSON over HTTP to the editorial API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a client with a bounded request timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) JournalByISSN(ctx context.Context, issn string) (*Journal, error) {
	issn = strings.TrimSpace(issn)
	if issn == "" {
		return nil, nil
	}
	var journals []Journal
	query := url.Values{"issn": []string{issn}}
	if err := c.getJSON(ctx, "/journals", query, &journals); err != nil {
		return nil, err
	}
	if len(journals) == 0 {
		return nil, nil
	}
	return &journals[0], nil
}

func (c *HTTPClient) FindIssue(ctx context.Context, journalRef string, criteria IssueCriteria) (*Issue, error) {
	query := url.Values{}
	for key, value := range map[string]string{
		"year":         criteria.Year,
		"volume":       criteria.Volume,
		"number":       criteria.Number,
		"suppl_volume": criteria.SupplVolume,
		"suppl_number": criteria.SupplNumber,
	} {
		if strings.TrimSpace(value) != "" {
			query.Set(key, value)
		}
	}

	var issues []Issue
	path := fmt.Sprintf("/journals/%s/issues", url.PathEscape(journalRef))
	if err := c.getJSON(ctx, path, query, &issues); err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &issues[0], nil
}

func (c *HTTPClient) IsRegisteredDOI(ctx context.Context, doi string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead,
		c.baseURL+"/doi/"+url.PathEscape(doi), nil)
	if err != nil {
		return false, fmt.Errorf("build doi request: %w", err)
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("doi lookup: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("doi lookup returned %d", resp.StatusCode)
	}
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("editorial request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("editorial returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode editorial response: %w", err)
	}
	return nil
}

func (c *HTTPClient) decorate(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
}
