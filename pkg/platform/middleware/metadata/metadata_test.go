package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidreg/pkg/requestcontext"
)

func TestMiddlewareHandler(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trusted    string
		expectedIP string
		expectedUA string
	}{
		{
			name:       "ignores XFF from untrusted peer",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", "User-Agent": "Mozilla/5.0"},
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
			expectedUA: "Mozilla/5.0",
		},
		{
			name:       "uses first XFF hop from trusted proxy",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2", "User-Agent": "curl/8.0"},
			remoteAddr: "10.0.0.1:12345",
			trusted:    "10.0.0.0/8",
			expectedIP: "203.0.113.1",
			expectedUA: "curl/8.0",
		},
		{
			name:       "uses X-Real-IP from trusted proxy",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			remoteAddr: "10.0.0.1:12345",
			trusted:    "10.0.0.1",
			expectedIP: "198.51.100.7",
		},
		{
			name:       "rejects malformed XFF",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			remoteAddr: "10.0.0.1:12345",
			trusted:    "10.0.0.0/8",
			expectedIP: "10.0.0.1",
		},
		{
			name:       "rejects oversized XFF",
			headers:    map[string]string{"X-Forwarded-For": strings.Repeat("1", MaxForwardedHeaderLength+1)},
			remoteAddr: "10.0.0.1:12345",
			trusted:    "10.0.0.0/8",
			expectedIP: "10.0.0.1",
		},
		{
			name:       "strips port from ipv6 peer",
			remoteAddr: "[::1]:8080",
			expectedIP: "::1",
		},
		{
			name:       "unknown without peer address",
			expectedIP: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trusted, err := ParseTrustedProxies(tt.trusted)
			require.NoError(t, err)

			var captured context.Context
			h := New(trusted).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = r.Context()
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			require.NotNil(t, captured)
			assert.Equal(t, tt.expectedIP, requestcontext.ClientIP(captured))
			assert.Equal(t, tt.expectedUA, requestcontext.UserAgent(captured))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies(" 10.0.0.0/8, 192.168.1.5 ,,")
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.5/32", prefixes[1].String())

	_, err = ParseTrustedProxies("10.0.0.0/99")
	assert.Error(t, err)
}
