package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		trusted  []netip.Prefix
		expected string
	}{
		{name: "forwarded for ignored without trusted proxies", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, remote: "203.0.113.7:80", expected: "203.0.113.7"},
		{name: "real ip ignored without trusted proxies", headers: map[string]string{"X-Real-IP": "198.51.100.1"}, remote: "203.0.113.7:80", expected: "203.0.113.7"},
		{name: "forwarded for ignored from untrusted peer", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, remote: "203.0.113.7:80", trusted: proxies, expected: "203.0.113.7"},
		{name: "trusted proxy forwards client", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, remote: "10.1.2.3:80", trusted: proxies, expected: "198.51.100.1"},
		{name: "rightmost untrusted hop wins over spoofed prefix", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.1, 10.0.0.5"}, remote: "192.0.2.1:80", trusted: proxies, expected: "198.51.100.1"},
		{name: "garbage hop stops the walk", headers: map[string]string{"X-Forwarded-For": "not-an-ip, 10.0.0.5"}, remote: "10.1.2.3:80", trusted: proxies, expected: "10.0.0.5"},
		{name: "trusted proxy real ip", headers: map[string]string{"X-Real-IP": " 198.51.100.9 "}, remote: "10.1.2.3:80", trusted: proxies, expected: "198.51.100.9"},
		{name: "trusted proxy without headers", remote: "10.1.2.3:80", trusted: proxies, expected: "10.1.2.3"},
		{name: "remote ipv6", remote: "[::1]:5555", expected: "::1"},
		{name: "empty remote", remote: "", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIPFromRequest(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.1.2.3/8 ", "", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}, got)

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientMetadataInjectsIP(t *testing.T) {
	var seen string
	h := ClientMetadata()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.5", seen)
}
