// Package transport builds the outbound HTTP client used by the engine and
// its modules, and runs the update check.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

// DefaultTimeout bounds requests made with NewClient.
const DefaultTimeout = 30 * time.Second

// ProxySettings is the settings.proxy section.
type ProxySettings struct {
	Address  string
	Username string
	Password string
}

// NewClient returns an HTTP client routed through the configured proxy.
// Without an address the environment proxy variables apply. http and https
// proxies receive the credentials as URL userinfo; socks5 proxies get them
// as SOCKS auth.
func NewClient(settings ProxySettings) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if settings.Address != "" {
		proxyURL, err := url.Parse(settings.Address)
		if err != nil || proxyURL.Host == "" {
			return nil, ferrors.ConfigError(fmt.Sprintf("invalid proxy address: %s", settings.Address)).
				WithContext("address", settings.Address).
				Build()
		}

		switch proxyURL.Scheme {
		case "socks5", "socks5h":
			var auth *proxy.Auth
			if settings.Username != "" && settings.Password != "" {
				auth = &proxy.Auth{User: settings.Username, Password: settings.Password}
			}
			dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: DefaultTimeout})
			if err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to set up SOCKS5 proxy").Build()
			}
			transport.Proxy = nil
			transport.DialContext = contextDialer(dialer)
		case "http", "https":
			target := &url.URL{Scheme: proxyURL.Scheme, Host: proxyURL.Host}
			if settings.Username != "" && settings.Password != "" {
				target.User = url.UserPassword(settings.Username, settings.Password)
			}
			transport.Proxy = http.ProxyURL(target)
		default:
			return nil, ferrors.ConfigError(fmt.Sprintf("unsupported proxy scheme: %s", proxyURL.Scheme)).
				WithContext("address", settings.Address).
				Build()
		}
	}

	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}, nil
}

func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}
