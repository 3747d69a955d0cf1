package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
)

const defaultHTTPTimeout = 60 * time.Second

var timeNow = time.Now

func defaultHTTPClient() httpretry.HTTPDoer {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// restClient is the JSON-over-HTTP plumbing shared by the platform clients.
// Errors come back classified for the retry policy.
type restClient struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
	// authorize sets credentials on each request.
	authorize func(ctx context.Context, req *http.Request) error
	// inspect may turn a platform's own error envelope into a classified
	// error. It sees every response; returning nil defers to the status code.
	inspect func(status int, header http.Header, body []byte) error
}

func (c *restClient) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return httpretry.Permanent(fmt.Errorf("failed to marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	reqURL := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return httpretry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		if err := c.authorize(ctx, req); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpretry.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpretry.Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	if c.inspect != nil {
		if err := c.inspect(resp.StatusCode, resp.Header, respBody); err != nil {
			return err
		}
	}
	if err := httpretry.Classify(resp.StatusCode, resp.Header, respBody); err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return httpretry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

// simulatedID names audiences created without reaching the platform.
func simulatedID(p domain.Platform) string {
	return fmt.Sprintf("sim_%s_%s", p, uuid.NewString())
}

// nonEmpty drops users without any identifier.
func nonEmpty(batch []identity.HashedUser) []identity.HashedUser {
	out := make([]identity.HashedUser, 0, len(batch))
	for _, u := range batch {
		if !u.Empty() {
			out = append(out, u)
		}
	}
	return out
}
