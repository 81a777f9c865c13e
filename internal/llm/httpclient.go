package llm

import (
	"net"
	"net/http"
	"time"
)

// RequestTimeout bounds one completion call end to end
const RequestTimeout = 30 * time.Second

// newLLMHTTPClient creates an HTTP client tuned for completion calls
func newLLMHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: RequestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       10,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   RequestTimeout,
		Transport: transport,
	}
}
