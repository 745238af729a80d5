package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/vocdoni-fhe-polls/api"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
)

const (
	// HTTPGET is used for the poll node read surface.
	HTTPGET = http.MethodGet
	// HTTPPOST is used for signed writes and relayer calls.
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultAttempts is how many times a read is sent when the node cannot
	// be reached. Writes are sent once.
	DefaultAttempts = 3
	// DefaultTimeout bounds every request to the node.
	DefaultTimeout = 10 * time.Second

	retryDelay  = 500 * time.Millisecond
	maxLogBytes = 512
)

// HTTPclient talks to the HTTP API of a poll node.
type HTTPclient struct {
	c        *http.Client
	host     *url.URL
	attempts int
}

// New returns a client for the poll node at host, once the node answers
// its ping endpoint.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &HTTPclient{
		c: &http.Client{
			Transport: &http.Transport{IdleConnTimeout: DefaultTimeout},
			Timeout:   DefaultTimeout,
		},
		host:     hostURL,
		attempts: DefaultAttempts,
	}
	data, status, err := c.Request(HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	log.Debugw("poll node client ready", "host", hostURL.String())
	return c, nil
}

// SetRetries sets how many times a read is sent before giving up.
func (c *HTTPclient) SetRetries(n int) {
	c.attempts = max(n, 1)
}

// SetTimeout sets the timeout of every request.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request sends method to the endpoint joined from urlPath, with jsonBody
// encoded as the request body when not nil. params holds query parameters
// as key, value pairs. It returns the raw response body and status code.
//
// A GET is retried while the node cannot be reached. A POST is sent only
// once: a vote that reached the node but lost its answer must not be sent
// again, it would be reported as already cast.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := c.endpoint(params, urlPath...)
	log.Debugw("poll node request", "method", method, "url", u, "body", truncate(body))

	attempts := 1
	if method == HTTPGET {
		attempts = c.attempts
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		data, status, err := c.do(method, u, body)
		if err == nil {
			return data, status, nil
		}
		lastErr = err
		log.Warnw("poll node request failed", "error", err.Error(), "attempt", i, "attempts", attempts)
		if i < attempts {
			time.Sleep(retryDelay)
		}
	}
	return nil, 0, fmt.Errorf("poll node unreachable after %d attempts: %w", attempts, lastErr)
}

func (c *HTTPclient) endpoint(params []string, urlPath ...string) string {
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 1 {
		values := url.Values{}
		for i := 0; i+1 < len(params); i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}
	return u.String()
}

func (c *HTTPclient) do(method, u string, body []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.c.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

func truncate(body []byte) string {
	if len(body) > maxLogBytes {
		return string(body[:maxLogBytes]) + "..."
	}
	return string(body)
}
