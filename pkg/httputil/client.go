// Package httputil is the shared HTTP plumbing for the gateway's
// outbound calls (shadow agent, audit backends): pooled transports,
// bounded body reads, and an inflight cap.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds body reads so a compromised upstream cannot
// balloon gateway memory.
const MaxResponseSize = 10 * 1024 * 1024

// One transport for every outbound call; connections are reused across
// the shadow agent and any webhook targets.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

var (
	clientsOnce sync.Once
	fastClient  *http.Client
	slowClient  *http.Client
)

func initClients() {
	fastClient = &http.Client{Timeout: 5 * time.Second, Transport: sharedTransport}
	slowClient = &http.Client{Timeout: 60 * time.Second, Transport: sharedTransport}
}

// FastClient returns the shared 5s-timeout client. The shadow-agent call
// path uses this: an escalation that cannot answer quickly is a fallback,
// not a wait.
func FastClient() *http.Client {
	clientsOnce.Do(initClients)
	return fastClient
}

// SlowClient returns the shared 60s-timeout client for bulk or
// administrative calls.
func SlowClient() *http.Client {
	clientsOnce.Do(initClients)
	return slowClient
}

// ReadResponseBody reads at most maxSize bytes of the body. maxSize <= 0
// uses MaxResponseSize.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads an error response body, capped at 1MB.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose empties and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
