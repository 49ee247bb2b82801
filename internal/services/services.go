// package services implements the HTTP clients for every external collaborator of the resolver.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/shared"
)

// maxBodyBytes caps how much of any response body is read.
const maxBodyBytes = 8 << 20

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do sends req and reads the body. Transport failures are classified with [shared.ClassifyNetworkError].
func do(client *http.Client, req *http.Request) (*response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", shared.ClassifyNetworkError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", shared.ClassifyNetworkError(err))
	}

	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// get builds and sends a GET request with the given headers.
func get(ctx context.Context, client *http.Client, rawURL string, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return do(client, req)
}

// decode unmarshals body into out, reporting failures as [shared.ErrMalformedResponse].
func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	return nil
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func defaultClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

func defaultLogger(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = log.Default()
	}
	return shared.WithLogger(l, "service", name)
}
