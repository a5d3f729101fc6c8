// Package openalex implements the external bibliographic feed client: a
// cursor-paginated author listing per institution plus institution detail
// lookups. The pipeline only consumes pages; pagination state lives in the
// cursor it passes back.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

const idPrefix = "https://openalex.org/"

// FirstCursor starts pagination from the beginning of the result set.
const FirstCursor = "*"

const authorSelect = "id,display_name,last_known_institution,works_count," +
	"cited_by_count,summary_stats,concepts,orcid,homepage"

// Config holds feed client settings.
type Config struct {
	BaseURL  string
	Mailto   string
	PageSize int
	Timeout  time.Duration
}

// Client talks to an OpenAlex-compatible API.
type Client struct {
	baseURL  string
	mailto   string
	pageSize int
	http     *http.Client
}

// NewClient creates a feed client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		mailto:   cfg.Mailto,
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
	}
}

// ConceptRecord is one scored research-area tag on an author record.
type ConceptRecord struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// InstitutionRef is the affiliation stub embedded in an author record.
type InstitutionRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// AuthorRecord is one author as returned by the feed.
type AuthorRecord struct {
	ID                   string          `json:"id"`
	DisplayName          string          `json:"display_name"`
	LastKnownInstitution *InstitutionRef `json:"last_known_institution"`
	WorksCount           int             `json:"works_count"`
	CitedByCount         int             `json:"cited_by_count"`
	SummaryStats         struct {
		HIndex   int `json:"h_index"`
		I10Index int `json:"i10_index"`
	} `json:"summary_stats"`
	Concepts []ConceptRecord `json:"concepts"`
	ORCID    string          `json:"orcid"`
	Homepage string          `json:"homepage"`
}

// AuthorsPage is one page of the cursor-paginated author listing.
// NextCursor is empty on the final page.
type AuthorsPage struct {
	Records    []AuthorRecord
	NextCursor string
}

// InstitutionDetail is the full institution record from a detail fetch.
type InstitutionDetail struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	Type        string `json:"type"`
	HomepageURL string `json:"homepage_url"`
	ROR         string `json:"ror"`
	WorksCount  int    `json:"works_count"`
	Geo         struct {
		City   string `json:"city"`
		Region string `json:"region"`
	} `json:"geo"`
}

// TrimID strips the feed's URL prefix from an entity identifier.
func TrimID(id string) string {
	return strings.TrimPrefix(id, idPrefix)
}

// AuthorsPage fetches one page of authors affiliated with the institution
// identified by its ROR id. Pass FirstCursor to start.
func (c *Client) AuthorsPage(ctx context.Context, institutionROR, cursor string) (AuthorsPage, error) {
	params := url.Values{}
	params.Set("filter", "last_known_institution.ror:"+institutionROR)
	params.Set("per_page", strconv.Itoa(c.pageSize))
	params.Set("select", authorSelect)
	params.Set("cursor", cursor)
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	var payload struct {
		Results []AuthorRecord `json:"results"`
		Meta    struct {
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	if err := c.get(ctx, c.baseURL+"/authors?"+params.Encode(), &payload); err != nil {
		return AuthorsPage{}, err
	}

	return AuthorsPage{
		Records:    payload.Results,
		NextCursor: payload.Meta.NextCursor,
	}, nil
}

// Institution fetches the detail record for an institution identifier.
func (c *Client) Institution(ctx context.Context, id string) (InstitutionDetail, error) {
	params := url.Values{}
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}
	endpoint := c.baseURL + "/institutions/" + url.PathEscape(TrimID(id))
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var detail InstitutionDetail
	if err := c.get(ctx, endpoint, &detail); err != nil {
		return InstitutionDetail{}, err
	}
	return detail, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feed request: %w: %w", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d: %w", resp.StatusCode, domain.ErrUpstreamFailure)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode feed payload: %w: %w", domain.ErrUpstreamFailure, err)
	}
	return nil
}
