package resolver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRedirector struct {
	result string
	err    error
	calls  int
}

func (s *stubRedirector) ResolveRedirect(ctx context.Context, url string) (string, error) {
	s.calls++
	return s.result, s.err
}

func newTestResolver(redirector Redirector) *Resolver {
	return New(redirector, nil, nil, slog.Default())
}

func TestResolveNumericReference(t *testing.T) {
	r := newTestResolver(&stubRedirector{})

	ref, err := r.Resolve(context.Background(), "123456789")
	require.NoError(t, err)

	assert.Equal(t, "123456789", ref.ProductID)
	assert.Equal(t, "https://www.trendyol.com/sr?pi=123456789", ref.CanonicalURL)
}

func TestResolveURLShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "standard slug",
			input:    "https://www.trendyol.com/apple/iphone-15-128-gb-p-773358088",
			expected: "773358088",
		},
		{
			name:     "productId query parameter",
			input:    "https://www.trendyol.com/detail?boutiqueId=61&productId=32041644",
			expected: "32041644",
		},
		{
			name:     "pi query parameter",
			input:    "https://www.trendyol.com/sr?q=&pi=956534756",
			expected: "956534756",
		},
		{
			name:     "short path form",
			input:    "https://www.trendyol.com/p/482156",
			expected: "482156",
		},
		{
			name:     "bare p-digits occurrence",
			input:    "https://www.trendyol.com/share/p-88112233",
			expected: "88112233",
		},
	}

	r := newTestResolver(&stubRedirector{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := r.Resolve(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ref.ProductID)
			assert.Equal(t, tt.input, ref.CanonicalURL)
		})
	}
}

func TestResolveUnsupportedShape(t *testing.T) {
	r := newTestResolver(&stubRedirector{})

	_, err := r.Resolve(context.Background(), "https://www.trendyol.com/hakkimizda")
	assert.ErrorIs(t, err, ErrNotResolvable)
}

func TestResolveShortenedLink(t *testing.T) {
	redirector := &stubRedirector{
		result: "https://www.trendyol.com/pun-wear/tisort-p-956534756",
	}
	r := newTestResolver(redirector)

	ref, err := r.Resolve(context.Background(), "https://ty.gl/reii1wcijhbf1")
	require.NoError(t, err)

	assert.Equal(t, 1, redirector.calls)
	assert.Equal(t, "956534756", ref.ProductID)
	assert.Equal(t, "https://www.trendyol.com/pun-wear/tisort-p-956534756", ref.CanonicalURL)
}

func TestResolveShortenedLinkRedirectFailure(t *testing.T) {
	redirector := &stubRedirector{err: errors.New("connection refused")}
	r := newTestResolver(redirector)

	// Redirect failure degrades to the original URL; this one carries no
	// extractable ID, so resolution fails cleanly.
	_, err := r.Resolve(context.Background(), "https://ty.gl/reii1wcijhbf1")
	assert.ErrorIs(t, err, ErrNotResolvable)
	assert.Equal(t, 1, redirector.calls)
}

func TestResolveDoesNotDereferenceRegularURLs(t *testing.T) {
	redirector := &stubRedirector{}
	r := newTestResolver(redirector)

	_, err := r.Resolve(context.Background(), "https://www.trendyol.com/apple/iphone-p-773358088")
	require.NoError(t, err)
	assert.Equal(t, 0, redirector.calls)
}

func TestIsValidReference(t *testing.T) {
	r := newTestResolver(&stubRedirector{})

	assert.True(t, r.IsValidReference("123456789"))
	assert.True(t, r.IsValidReference("https://www.trendyol.com/x-p-1"))
	assert.True(t, r.IsValidReference("https://ty.gl/abc"))
	assert.True(t, r.IsValidReference("https://tyml.gl/abc"))
	assert.True(t, r.IsValidReference("https://www.trendyol-milla.com/x-p-1"))

	assert.False(t, r.IsValidReference("https://www.amazon.de/dp/B0TEST"))
	assert.False(t, r.IsValidReference("not a url"))
	assert.False(t, r.IsValidReference(""))
	assert.False(t, r.IsValidReference("https://eviltrendyol.com/x-p-1"))
}
