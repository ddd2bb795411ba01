// Package source talks to the upstream opportunity search API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"govwatch/discovery-service/internal/model"
)

const (
	DefaultBaseURL  = "https://api.sam.gov/opportunities/v2/search"
	DefaultPageSize = 100
	MaxPageSize     = 1000
	DefaultTimeout  = 30 * time.Second

	// The search endpoint takes inclusive dates in this layout.
	dateLayout = "01/02/2006"
	// Keep error bodies short in logs and history rows.
	maxErrorBody = 512
)

// Params describes one page request.
type Params struct {
	PostedFrom time.Time
	PostedTo   time.Time
	Keyword    string
	Limit      int
	Offset     int
	// Credential is the API key of the execution identity. Empty means none
	// could be resolved.
	Credential string
}

// Page is one page of results plus the total the source reports.
type Page struct {
	TotalAvailable int
	Records        []model.RawRecord
}

// SourceClient performs a single paginated search query.
type SourceClient interface {
	Search(ctx context.Context, p Params) (Page, error)
}

// ConfigurationError reports a missing or rejected credential. It is not
// worth retrying.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "source configuration: " + e.Msg }

// UnavailableError reports a network failure, timeout or unexpected status.
type UnavailableError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source unavailable: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// SAMClient queries the SAM.gov opportunities search API.
type SAMClient struct {
	BaseURL string
	client  *http.Client
}

// NewSAMClient constructs a client. An empty baseURL selects DefaultBaseURL;
// a non-positive timeout selects DefaultTimeout.
func NewSAMClient(baseURL string, timeout time.Duration) *SAMClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SAMClient{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// samResponse mirrors the top-level search response.
type samResponse struct {
	TotalRecords      int               `json:"totalRecords"`
	OpportunitiesData []model.RawRecord `json:"opportunitiesData"`
}

// Search fetches one page. Records are returned untouched; normalisation
// happens at ingestion.
func (c *SAMClient) Search(ctx context.Context, p Params) (Page, error) {
	if strings.TrimSpace(p.Credential) == "" {
		return Page{}, &ConfigurationError{Msg: "no API credential available"}
	}

	limit := ClampPageSize(p.Limit)
	params := url.Values{}
	params.Set("api_key", p.Credential)
	params.Set("postedFrom", p.PostedFrom.Format(dateLayout))
	params.Set("postedTo", p.PostedTo.Format(dateLayout))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(p.Offset))
	if p.Keyword != "" {
		params.Set("title", p.Keyword)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, &ConfigurationError{Msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, &UnavailableError{Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Page{}, &ConfigurationError{Msg: fmt.Sprintf("credential rejected (status %d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Page{}, &UnavailableError{StatusCode: resp.StatusCode, Err: errors.New(truncate(string(body)))}
	}

	var apiResp samResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&apiResp); err != nil {
		return Page{}, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("json decode: %w", err)}
	}

	return Page{TotalAvailable: apiResp.TotalRecords, Records: apiResp.OpportunitiesData}, nil
}

// ClampPageSize bounds n to (0, MaxPageSize], defaulting to DefaultPageSize.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// url.Error embeds the full request URL, API key included.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s search: %w", ue.Op, ue.Err)
	}
	return err
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "…"
	}
	return s
}
