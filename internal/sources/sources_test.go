package sources

import (
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

func TestGovSearchBuildsPagesInOrder(t *testing.T) {
	t.Parallel()

	src, err := GovSearch(GovSearchConfig{
		Query:    "金融 五篇 大文章",
		MaxPages: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, GovSearchTag, src.Tag)
	assert.True(t, src.Dedup, "listing source deduplicates")
	require.Len(t, src.Targets, 3)

	for i, target := range src.Targets {
		assert.Equal(t, "sousuo.gov.cn", target.Domain)
		assert.Equal(t, GovSearchTag, target.Source)
		assert.Equal(t, strconv.Itoa(i), target.Metadata["page"], "pages are ordered")

		u, err := url.Parse(target.URL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "金融 五篇 大文章", q.Get("q"))
		assert.Equal(t, "govall", q.Get("t"))
		assert.Equal(t, strconv.Itoa(i), q.Get("p"))
		assert.Equal(t, "20", q.Get("n"))
		assert.Equal(t, "time", q.Get("sort"))
	}
}

func TestGovSearchCarriesDateWindowMetadata(t *testing.T) {
	t.Parallel()

	src, err := GovSearch(GovSearchConfig{
		Query:     "policy",
		MaxPages:  1,
		StartDate: "2024-01-01",
		EndDate:   "2024-12-31",
	})
	require.NoError(t, err)
	require.Len(t, src.Targets, 1)
	assert.Equal(t, "2024-01-01", src.Targets[0].Metadata["start_date"])
	assert.Equal(t, "2024-12-31", src.Targets[0].Metadata["end_date"])
}

func TestGovSearchRejectsHostlessBaseURL(t *testing.T) {
	t.Parallel()

	_, err := GovSearch(GovSearchConfig{BaseURL: "/s.htm", Query: "policy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}

func TestWorldBankRejectsHostlessBaseURL(t *testing.T) {
	t.Parallel()

	_, err := WorldBank(WorldBankConfig{BaseURL: "/v2", Indicators: []string{"IP.PAT.RESD"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}

func TestWorldBankBuildsOneTargetPerIndicator(t *testing.T) {
	t.Parallel()

	src, err := WorldBank(WorldBankConfig{
		Country:    "CHN",
		Indicators: []string{"IP.PAT.RESD", "IT.NET.USER.ZS"},
		StartYear:  2000,
		EndYear:    2025,
	})
	require.NoError(t, err)

	assert.Equal(t, WorldBankTag, src.Tag)
	assert.False(t, src.Dedup, "independent API calls are re-fetched every run")
	require.NotNil(t, src.Validate)
	require.Len(t, src.Targets, 2)

	first := src.Targets[0]
	assert.Equal(t, "api.worldbank.org", first.Domain)
	assert.Equal(t, "IP.PAT.RESD", first.Metadata["indicator"])
	assert.Equal(t, "CHN", first.Metadata["country"])

	u, err := url.Parse(first.URL)
	require.NoError(t, err)
	assert.Equal(t, "/v2/country/CHN/indicator/IP.PAT.RESD", u.Path)
	q := u.Query()
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "2000:2025", q.Get("date"))
	assert.Equal(t, "20000", q.Get("per_page"))
}

func TestValidateWorldBankEnvelope(t *testing.T) {
	t.Parallel()

	target := fetch.Target{Metadata: map[string]string{"indicator": "IP.PAT.RESD"}}

	t.Run("valid two-element array", func(t *testing.T) {
		t.Parallel()
		body := []byte(`[{"page":1,"total":3},[{"date":"2024","value":1.5}]]`)
		assert.NoError(t, ValidateWorldBankEnvelope(target, 200, body))
	})

	t.Run("message envelope", func(t *testing.T) {
		t.Parallel()
		body := []byte(`[{"message":[{"id":"120","value":"Invalid indicator"}]}]`)
		err := ValidateWorldBankEnvelope(target, 200, body)
		var payloadErr *fetch.UnexpectedPayloadError
		require.ErrorAs(t, err, &payloadErr)
		assert.Contains(t, payloadErr.Detail, "IP.PAT.RESD")
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		err := ValidateWorldBankEnvelope(target, 200, []byte("<html>error</html>"))
		var payloadErr *fetch.UnexpectedPayloadError
		require.ErrorAs(t, err, &payloadErr)
	})

	t.Run("json object instead of array", func(t *testing.T) {
		t.Parallel()
		err := ValidateWorldBankEnvelope(target, 200, []byte(`{"message":"nope"}`))
		var payloadErr *fetch.UnexpectedPayloadError
		require.ErrorAs(t, err, &payloadErr)
	})
}
