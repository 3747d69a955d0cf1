package activation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
)

// Graph API error codes that mean throttling.
var metaRateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80003: true}

// metaGraphError is the Graph API error envelope body.
type metaGraphError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	IsTransient bool   `json:"is_transient"`
	TraceID     string `json:"fbtrace_id"`
}

func (e *metaGraphError) Error() string {
	return fmt.Sprintf("meta: (#%d) %s", e.Code, e.Message)
}

func inspectMeta(status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var env struct {
		Error *metaGraphError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	e := env.Error
	switch {
	case metaRateLimitCodes[e.Code]:
		return &httpretry.RateLimitError{
			StatusCode: status,
			RetryAfter: httpretry.ParseRetryAfter(header.Get("Retry-After"), timeNow()),
			Message:    e.Error(),
		}
	case e.IsTransient || e.Code == 1 || e.Code == 2 || status >= 500:
		return &httpretry.RetryableError{StatusCode: status, Err: e}
	}
	return &httpretry.PermanentError{StatusCode: status, Err: e}
}

// MetaClient uploads Custom Audiences through the Meta Graph API.
type MetaClient struct {
	cfg       config.MetaConfig
	api       *restClient
	simulated bool
}

// NewMetaClient creates a Meta client. Without a usable access token and ad
// account it runs simulated.
func NewMetaClient(cfg config.MetaConfig, httpClient httpretry.HTTPDoer) *MetaClient {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v18.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	c := &MetaClient{cfg: cfg, simulated: !cfg.IsValid()}
	c.api = &restClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		httpClient: httpClient,
		authorize: func(_ context.Context, req *http.Request) error {
			req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
			return nil
		},
		inspect: inspectMeta,
	}
	return c
}

func (c *MetaClient) Platform() domain.Platform { return domain.PlatformMeta }
func (c *MetaClient) BatchSize() int            { return MetaBatchSize }
func (c *MetaClient) Simulated() bool           { return c.simulated }

func (c *MetaClient) adAccount() string {
	if strings.HasPrefix(c.cfg.AdAccountID, "act_") {
		return c.cfg.AdAccountID
	}
	return "act_" + c.cfg.AdAccountID
}

// Authenticate checks that the token can read the ad account.
func (c *MetaClient) Authenticate(ctx context.Context) error {
	if c.simulated {
		logger.Info("meta: running simulated, credentials not configured")
		return nil
	}
	var out struct {
		ID string `json:"id"`
	}
	q := url.Values{"fields": {"id,name"}}
	if err := c.api.doRequest(ctx, http.MethodGet, "/"+c.adAccount(), q, nil, &out); err != nil {
		return fmt.Errorf("meta authenticate: %w", err)
	}
	return nil
}

// CreateAudience creates a customer-list Custom Audience.
func (c *MetaClient) CreateAudience(ctx context.Context, name, description string) (string, error) {
	if c.simulated {
		return simulatedID(domain.PlatformMeta), nil
	}
	if description == "" {
		description = "Created by CDP"
	}
	body := map[string]interface{}{
		"name":                 name,
		"subtype":              "CUSTOM",
		"description":          description,
		"customer_file_source": "USER_PROVIDED_ONLY",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.api.doRequest(ctx, http.MethodPost, "/"+c.adAccount()+"/customaudiences", nil, body, &out); err != nil {
		return "", fmt.Errorf("meta create audience: %w", err)
	}
	if out.ID == "" {
		return "", httpretry.Permanent(errors.New("meta create audience: response has no id"))
	}
	return out.ID, nil
}

// UploadBatch adds hashed users to the audience.
func (c *MetaClient) UploadBatch(ctx context.Context, audienceID string, batch []identity.HashedUser) (int, error) {
	users := nonEmpty(batch)
	if len(users) == 0 {
		return 0, nil
	}
	if c.simulated {
		return len(users), nil
	}

	data := make([][]string, len(users))
	for i, u := range users {
		data[i] = []string{u.Email, u.Phone}
	}
	body := map[string]interface{}{
		"payload": map[string]interface{}{
			"schema": []string{"EMAIL_SHA256", "PHONE_SHA256"},
			"data":   data,
		},
	}
	var out struct {
		NumReceived       *int `json:"num_received"`
		NumInvalidEntries int  `json:"num_invalid_entries"`
	}
	if err := c.api.doRequest(ctx, http.MethodPost, "/"+audienceID+"/users", nil, body, &out); err != nil {
		return 0, fmt.Errorf("meta upload users: %w", err)
	}
	if out.NumReceived == nil {
		return len(users), nil
	}
	return *out.NumReceived - out.NumInvalidEntries, nil
}

// GetAudienceStatus reads the audience's size and operation status.
func (c *MetaClient) GetAudienceStatus(ctx context.Context, audienceID string) AudienceStatus {
	st := AudienceStatus{Platform: domain.PlatformMeta, ID: audienceID}
	if c.simulated {
		st.Status = StatusReady
		return st
	}

	var out struct {
		Name            string `json:"name"`
		ApproxCount     int64  `json:"approximate_count_lower_bound"`
		OperationStatus struct {
			Code        int    `json:"code"`
			Description string `json:"description"`
		} `json:"operation_status"`
	}
	q := url.Values{"fields": {"name,approximate_count_lower_bound,operation_status"}}
	if err := c.api.doRequest(ctx, http.MethodGet, "/"+audienceID, q, nil, &out); err != nil {
		return failedStatus(st, err, func(e error) bool {
			var ge *metaGraphError
			return errors.As(e, &ge) && ge.Code == 100
		})
	}
	st.Name = out.Name
	st.Size = out.ApproxCount
	switch {
	case out.OperationStatus.Code == 200 || out.OperationStatus.Code == 0:
		st.Status = StatusReady
	default:
		st.Status = out.OperationStatus.Description
	}
	return st
}

// failedStatus maps a status lookup error to NOT_FOUND or UNKNOWN.
func failedStatus(st AudienceStatus, err error, notFound func(error) bool) AudienceStatus {
	st.Error = err.Error()
	var pe *httpretry.PermanentError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound || notFound != nil && notFound(err) {
		st.Status = StatusNotFound
		return st
	}
	logger.Warn("activation: audience status lookup failed", "platform", st.Platform, "audience_id", st.ID, "error", err)
	st.Status = StatusUnknown
	return st
}
