package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

var errNoBody = errors.New("response has no readable body")

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns a singleton HTTP client. It carries no overall
// timeout: answers stream for as long as the service keeps writing, and
// deadlines come from the request context.
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: false,
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		// Add context-aware dial options
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext

		httpClient = &http.Client{
			Transport: transport,
		}
	})
	return httpClient
}

// transport holds what every protocol variant needs to talk to the service.
type transport struct {
	endpoint *url.URL
	http     HTTPClient
	apiKey   string
}

func (t *transport) client() HTTPClient {
	if t.http != nil {
		return t.http
	}
	return getHTTPClient()
}

// defaultHeaders returns the default headers for the API requests.
func (t *transport) defaultHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if t.apiKey != "" {
		headers["Authorization"] = "Bearer " + t.apiKey
	}
	return headers
}

// post sends payload as JSON to path. A non-2xx answer is returned as a
// *StatusError with the body already closed; otherwise the caller owns the body.
func (t *transport) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	data, err := jsoniter.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	target := t.endpoint.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	for k, v := range t.defaultHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", accept)

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, errNoBody
	}
	return resp, nil
}
