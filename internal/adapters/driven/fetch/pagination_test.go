package fetch

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty", header: "", want: ""},
		{name: "next only", header: `<https://api.example.org/e?page=2>; rel="next"`, want: "https://api.example.org/e?page=2"},
		{
			name:   "several links",
			header: `<https://api.example.org/e?page=1>; rel="prev", <https://api.example.org/e?page=3>; rel="next", <https://api.example.org/e?page=9>; rel="last"`,
			want:   "https://api.example.org/e?page=3",
		},
		{name: "unquoted rel", header: `</e?page=2>; rel=next`, want: "/e?page=2"},
		{name: "multiple rel values", header: `</e?page=2>; rel="next last"`, want: "/e?page=2"},
		{name: "no next", header: `<https://api.example.org/e?page=1>; rel="first"`, want: ""},
		{name: "malformed", header: `https://api.example.org/e?page=2; rel="next"`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNextLink(tt.header))
		})
	}
}

func TestResolveRef(t *testing.T) {
	assert.Equal(t, "https://data.example.org/a/b.json", resolveRef("https://data.example.org/a/index.json", "b.json"))
	assert.Equal(t, "https://cdn.example.org/x", resolveRef("https://data.example.org/a/index.json", "https://cdn.example.org/x"))
	assert.Equal(t, "/data/deltas/1.json", resolveRef("/data/delta.json", "deltas/1.json"))
	assert.Empty(t, resolveRef("https://data.example.org/", ""))
}

func TestParseS3Location(t *testing.T) {
	u, err := url.Parse("s3://datasets/2024/entities.ftm.json.gz")
	require.NoError(t, err)
	bucket, key, err := parseS3Location(u)
	require.NoError(t, err)
	assert.Equal(t, "datasets", bucket)
	assert.Equal(t, "2024/entities.ftm.json.gz", key)

	u, err = url.Parse("s3://datasets/")
	require.NoError(t, err)
	_, _, err = parseS3Location(u)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
