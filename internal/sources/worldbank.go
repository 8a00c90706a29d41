package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

// WorldBankConfig parameterizes the open statistics API source.
type WorldBankConfig struct {
	BaseURL    string
	Country    string
	Indicators []string
	StartYear  int
	EndYear    int
	PerPage    int
}

// WorldBankTag identifies the statistics source in ledgers and manifests.
const WorldBankTag = "worldbank"

// WorldBank builds one target per indicator code. The calls are
// independent, so no dedup applies and the order carries no meaning.
// Each successful response is validated against the API's envelope shape.
func WorldBank(cfg WorldBankConfig) (fetch.Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.worldbank.org/v2"
	}
	if cfg.Country == "" {
		cfg.Country = "CHN"
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20000
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fetch.Source{}, fmt.Errorf("parse worldbank base url: %w", err)
	}
	domain, err := fetch.DomainOf(cfg.BaseURL)
	if err != nil {
		return fetch.Source{}, fmt.Errorf("worldbank base url: %w", err)
	}

	targets := make([]fetch.Target, 0, len(cfg.Indicators))
	for _, indicator := range cfg.Indicators {
		q := url.Values{}
		q.Set("format", "json")
		q.Set("per_page", strconv.Itoa(cfg.PerPage))
		if cfg.StartYear > 0 && cfg.EndYear > 0 {
			q.Set("date", fmt.Sprintf("%d:%d", cfg.StartYear, cfg.EndYear))
		}

		callURL := fmt.Sprintf("%s/country/%s/indicator/%s?%s",
			base.String(), url.PathEscape(cfg.Country), url.PathEscape(indicator), q.Encode())

		targets = append(targets, fetch.Target{
			Domain: domain,
			URL:    callURL,
			Method: "GET",
			Source: WorldBankTag,
			Metadata: map[string]string{
				"country":   cfg.Country,
				"indicator": indicator,
			},
		})
	}

	return fetch.Source{
		Tag:      WorldBankTag,
		Targets:  targets,
		Dedup:    false,
		Validate: ValidateWorldBankEnvelope,
	}, nil
}

// ValidateWorldBankEnvelope checks that a response is the expected
// two-element JSON array of [metadata, rows]. The API signals errors as a
// one-element message envelope with HTTP 200, which the transport cannot
// classify; such responses are reported per indicator and never retried.
func ValidateWorldBankEnvelope(t fetch.Target, status int, body []byte) error {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &fetch.UnexpectedPayloadError{
			Detail: fmt.Sprintf("indicator %s: not a JSON array: %v", t.Metadata["indicator"], err),
		}
	}
	if len(envelope) < 2 {
		return &fetch.UnexpectedPayloadError{
			Detail: fmt.Sprintf("indicator %s: message envelope instead of data", t.Metadata["indicator"]),
		}
	}
	return nil
}
