package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

func TestNewClient_NoProxy(t *testing.T) {
	client, err := NewClient(ProxySettings{})
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, client.Timeout)
}

func TestNewClient_HTTPProxyWithCredentials(t *testing.T) {
	client, err := NewClient(ProxySettings{Address: "http://proxy.local:3128/ignored", Username: "u", Password: "p"})
	require.NoError(t, err)

	tr := client.Transport.(*http.Transport)
	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	proxyURL, err := tr.Proxy(req)
	require.NoError(t, err)
	require.Equal(t, "http://u:p@proxy.local:3128", proxyURL.String())
}

func TestNewClient_HTTPProxyWithoutPassword(t *testing.T) {
	client, err := NewClient(ProxySettings{Address: "https://proxy.local:3128", Username: "u"})
	require.NoError(t, err)
	proxyURL, err := client.Transport.(*http.Transport).Proxy(httptest.NewRequest(http.MethodGet, "http://x/", nil))
	require.NoError(t, err)
	require.Nil(t, proxyURL.User)
}

func TestNewClient_SOCKS5(t *testing.T) {
	client, err := NewClient(ProxySettings{Address: "socks5://127.0.0.1:1080", Username: "u", Password: "p"})
	require.NoError(t, err)
	tr := client.Transport.(*http.Transport)
	require.Nil(t, tr.Proxy)
	require.NotNil(t, tr.DialContext)
}

func TestNewClient_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"ftp://proxy:21", "not a url"} {
		_, err := NewClient(ProxySettings{Address: addr})
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), "address %q", addr)
	}
}

func TestCheckUpdates(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"latest": "1.3.0", "needsUpgrade": false}`))
	}))
	defer srv.Close()

	res, err := CheckUpdates(context.Background(), srv.Client(), srv.URL+"/updates/", "1.2.0", "abc")
	require.NoError(t, err)
	require.True(t, res.Newer)
	require.Equal(t, "1.3.0", res.Latest)
	require.Equal(t, "1.2.0", query.Get("version"))
	require.Equal(t, "abc", query.Get("installID"))

	res, err = CheckUpdates(context.Background(), srv.Client(), srv.URL, "1.3.0", "abc")
	require.NoError(t, err)
	require.False(t, res.Newer)
}

func TestCheckUpdates_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") == "bad-json" {
			_, _ = w.Write([]byte("nope"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := CheckUpdates(context.Background(), srv.Client(), srv.URL, "1.0.0", "")
	require.ErrorContains(t, err, "HTTP 500")

	_, err = CheckUpdates(context.Background(), srv.Client(), srv.URL, "bad-json", "")
	require.ErrorContains(t, err, "decode update info")
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("1.2.3", "v1.10.0")
	require.NoError(t, err)
	require.True(t, newer)

	newer, err = IsNewer("1.2.3-rc1", "1.2.3")
	require.NoError(t, err)
	require.True(t, newer)

	_, err = IsNewer("dev", "1.0.0")
	require.Error(t, err)
}
