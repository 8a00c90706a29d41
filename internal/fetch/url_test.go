package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "strips fragment",
			in:   "https://example.com/a#section",
			want: "https://example.com/a",
		},
		{
			name: "sorts query parameters",
			in:   "https://example.com/s?z=1&a=2",
			want: "https://example.com/s?a=2&z=1",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalURLEquivalentInputsMatch(t *testing.T) {
	t.Parallel()

	a, err := CanonicalURL("https://Example.com/s?b=2&a=1#frag")
	require.NoError(t, err)
	b, err := CanonicalURL("https://example.com:443/s?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	got, err := DomainOf("https://API.WorldBank.org/v2/country/CHN")
	require.NoError(t, err)
	assert.Equal(t, "api.worldbank.org", got)

	_, err = DomainOf("not a url %%")
	assert.Error(t, err)

	_, err = DomainOf("/relative/only")
	assert.Error(t, err)
}
