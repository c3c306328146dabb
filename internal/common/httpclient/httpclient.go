// Package httpclient provides a small HTTP client for making requests to the
// tracking server's REST API. It handles request building, query parameters,
// and error decoding of server responses.
package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// ServerError represents an error response from the server with a result code and error message.
type ServerError struct {
	Result int    `json:"result"` // HTTP status code or result code from server
	Error  string `json:"error"`  // Error message from server
}

// HTTPError represents an error response from the server with HTTP status code and message.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Message    string // Error message or response body
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	return e.Message
}

// HTTPClient represents a client for making HTTP requests to the tracking server.
type HTTPClient struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new HTTP client for the given server URL.
func NewClient(serverURL string) *HTTPClient {
	return &HTTPClient{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequestOptions contains options for making HTTP requests.
// All fields are required except QueryParams and Body.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PUT, DELETE)
	Path        string            // API endpoint path
	QueryParams map[string]string // Optional query parameters
	Body        []byte            // Optional request body
}

// DoRequest makes an HTTP request with the given options.
// Returns the response body, Location header (if present), and any error that occurred.
func (c *HTTPClient) DoRequest(opts RequestOptions) ([]byte, string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid server URL: %v", err)
	}
	u.Path = path.Join(u.Path, opts.Path)

	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	bodyReader := bytes.NewBuffer(opts.Body)
	req, err := http.NewRequest(opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode >= 400 {
		var serverErr ServerError
		if err := json.Unmarshal(body, &serverErr); err == nil && serverErr.Error != "" {
			return nil, "", &HTTPError{
				StatusCode: resp.StatusCode,
				Message:    serverErr.Error,
			}
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", &HTTPError{
				StatusCode: resp.StatusCode,
				Message:    "server doesn't implement this endpoint",
			}
		}
		return nil, "", &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	return body, resp.Header.Get("Location"), nil
}
