package customHttpClient

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
)

var (
	once   sync.Once
	client *http.Client
)

// Shared returns the one pooled client every remote extraction call goes through.
func Shared() *http.Client {
	once.Do(func() {
		client = New(config.LLMRequestTimeout)
	})
	return client
}

func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
