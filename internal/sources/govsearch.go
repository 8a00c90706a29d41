// Package sources builds the ordered FetchTarget batches for each
// configured data source. It owns source-specific URL construction and
// payload validation; it never fetches anything itself.
package sources

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

// GovSearchConfig parameterizes the government search listing source.
type GovSearchConfig struct {
	BaseURL   string
	Query     string
	MaxPages  int
	PageSize  int
	SortBy    string
	StartDate string
	EndDate   string
}

// GovSearchTag identifies the listing source in ledgers and manifests.
const GovSearchTag = "gov_search"

// GovSearch builds one target per result page, in page order. Page order
// matters: downstream pagination semantics assume the listing was walked
// front to back. Deduplication applies, keyed on the canonical page URL.
func GovSearch(cfg GovSearchConfig) (fetch.Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sousuo.gov.cn/s.htm"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "time"
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fetch.Source{}, fmt.Errorf("parse gov search base url: %w", err)
	}
	domain, err := fetch.DomainOf(cfg.BaseURL)
	if err != nil {
		return fetch.Source{}, fmt.Errorf("gov search base url: %w", err)
	}

	targets := make([]fetch.Target, 0, cfg.MaxPages)
	for page := 0; page < cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("q", cfg.Query)
		q.Set("t", "govall")
		q.Set("n", strconv.Itoa(cfg.PageSize))
		q.Set("p", strconv.Itoa(page))
		q.Set("sort", cfg.SortBy)

		pageURL := *base
		pageURL.RawQuery = q.Encode()

		meta := map[string]string{
			"page":  strconv.Itoa(page),
			"query": cfg.Query,
		}
		if cfg.StartDate != "" {
			meta["start_date"] = cfg.StartDate
		}
		if cfg.EndDate != "" {
			meta["end_date"] = cfg.EndDate
		}

		targets = append(targets, fetch.Target{
			Domain:   domain,
			URL:      pageURL.String(),
			Method:   "GET",
			Source:   GovSearchTag,
			Metadata: meta,
		})
	}

	return fetch.Source{
		Tag:     GovSearchTag,
		Targets: targets,
		Dedup:   true,
	}, nil
}
