package ingest

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DialTimeout     = 10 * time.Second
	IdleConnTimeout = 90 * time.Second
	KeepAlive       = 30 * time.Second
	MaxIdleConns    = 8
	UserAgent       = "price-tracker"
)

// newHTTPClient creates the upstream client, retries are handled by the scheduler, not by the client.
func newHTTPClient(cfg Config) *resty.Client {
	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetHeader("User-Agent", UserAgent)
	c.SetHeader("Accept", "application/json")
	c.SetTimeout(cfg.Timeout)
	c.SetTransport(newTransport())
	c.SetRetryCount(0)
	return c
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: KeepAlive,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          MaxIdleConns,
		IdleConnTimeout:       IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   MaxIdleConns,
	}
}
