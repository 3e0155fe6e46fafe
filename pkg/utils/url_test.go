package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLink(t *testing.T) {
	base, err := url.Parse("https://example.com/news/")
	require.NoError(t, err)

	tests := []struct {
		href string
		want string
	}{
		{"/a", "https://example.com/a"},
		{"b", "https://example.com/news/b"},
		{"  /padded\n", "https://example.com/padded"},
		{"/post/1#comments", "https://example.com/post/1"},
		{"https://other.org/c", "https://other.org/c"},
		{"//cdn.example.com/d", "https://cdn.example.com/d"},
		{"", "https://example.com/news/"},
	}
	for _, tt := range tests {
		got, err := ResolveLink(base, tt.href)
		require.NoError(t, err, tt.href)
		assert.Equal(t, tt.want, got, tt.href)
	}

	_, err = ResolveLink(base, "%zz")
	assert.Error(t, err)
}
