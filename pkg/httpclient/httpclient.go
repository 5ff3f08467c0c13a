// Package httpclient builds the HTTP clients used for manifest, catalog and
// package downloads, honoring the proxy settings a toolkit manifest may
// enforce and the user's --insecure escape hatch.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// Config controls the transport of a client returned by New.
type Config struct {
	// HTTPProxy and HTTPSProxy are proxy URLs applied per scheme.
	HTTPProxy  string
	HTTPSProxy string
	// NoProxy lists hosts excluded from proxying, comma separated.
	NoProxy string
	// Insecure disables TLS certificate verification.
	Insecure bool
}

// hasProxy reports whether any proxy setting is present.
func (c Config) hasProxy() bool {
	return c.HTTPProxy != "" || c.HTTPSProxy != "" || c.NoProxy != ""
}

// New creates an *http.Client for cfg. Without explicit proxy settings the
// process environment (http_proxy and friends) applies, matching what a
// child process spawned with our env vars would do.
func New(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if cfg.hasProxy() {
		pc := &httpproxy.Config{
			HTTPProxy:  cfg.HTTPProxy,
			HTTPSProxy: cfg.HTTPSProxy,
			NoProxy:    cfg.NoProxy,
		}
		proxyFunc := pc.ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		}
	}
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}
