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

// TikTok Business API envelope codes.
const (
	tiktokCodeOK          = 0
	tiktokCodeRateLimit   = 40100
	tiktokCodeNotFound    = 40002
	tiktokCodeServerError = 50000
)

// tiktokAPIError is a non-zero code in the {code, message, data} envelope.
type tiktokAPIError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *tiktokAPIError) Error() string {
	return fmt.Sprintf("tiktok: code %d: %s", e.Code, e.Message)
}

// inspectTikTok classifies the envelope. TikTok answers most failures with
// HTTP 200 and a non-zero code.
func inspectTikTok(status int, header http.Header, body []byte) error {
	var env tiktokAPIError
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Code == tiktokCodeOK {
		return nil
	}
	switch {
	case env.Code == tiktokCodeRateLimit:
		return &httpretry.RateLimitError{
			StatusCode: status,
			RetryAfter: httpretry.ParseRetryAfter(header.Get("Retry-After"), timeNow()),
			Message:    env.Error(),
		}
	case env.Code >= tiktokCodeServerError:
		return &httpretry.RetryableError{StatusCode: status, Err: &env}
	}
	return &httpretry.PermanentError{StatusCode: status, Err: &env}
}

// TikTokClient manages DMP custom audiences through the TikTok Business API.
type TikTokClient struct {
	cfg       config.TikTokConfig
	api       *restClient
	simulated bool
}

// NewTikTokClient creates a TikTok client. Without an access token and
// advertiser id it runs simulated.
func NewTikTokClient(cfg config.TikTokConfig, httpClient httpretry.HTTPDoer) *TikTokClient {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://business-api.tiktok.com/open_api/v1.3"
	}
	c := &TikTokClient{cfg: cfg, simulated: !cfg.IsValid()}
	c.api = &restClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		authorize: func(_ context.Context, req *http.Request) error {
			req.Header.Set("Access-Token", cfg.AccessToken)
			return nil
		},
		inspect: inspectTikTok,
	}
	return c
}

func (c *TikTokClient) Platform() domain.Platform { return domain.PlatformTikTok }
func (c *TikTokClient) BatchSize() int            { return TikTokBatchSize }
func (c *TikTokClient) Simulated() bool           { return c.simulated }

func (c *TikTokClient) advertiserIDs() string {
	ids, _ := json.Marshal([]string{c.cfg.AdvertiserID})
	return string(ids)
}

// Authenticate checks the token against the advertiser info endpoint.
func (c *TikTokClient) Authenticate(ctx context.Context) error {
	if c.simulated {
		logger.Info("tiktok: running simulated, credentials not configured")
		return nil
	}
	q := url.Values{"advertiser_ids": {c.advertiserIDs()}}
	if err := c.api.doRequest(ctx, http.MethodGet, "/advertiser/info/", q, nil, nil); err != nil {
		return fmt.Errorf("tiktok authenticate: %w", err)
	}
	return nil
}

// CreateAudience creates an empty custom audience.
func (c *TikTokClient) CreateAudience(ctx context.Context, name, _ string) (string, error) {
	if c.simulated {
		return simulatedID(domain.PlatformTikTok), nil
	}
	body := map[string]interface{}{
		"advertiser_id":        c.cfg.AdvertiserID,
		"custom_audience_name": name,
		"file_paths":           []string{},
		"calculate_type":       "MULTIPLE_TYPES",
	}
	var out struct {
		Data struct {
			CustomAudienceID string `json:"custom_audience_id"`
		} `json:"data"`
	}
	if err := c.api.doRequest(ctx, http.MethodPost, "/dmp/custom_audience/create/", nil, body, &out); err != nil {
		return "", fmt.Errorf("tiktok create audience: %w", err)
	}
	if out.Data.CustomAudienceID == "" {
		return "", httpretry.Permanent(errors.New("tiktok create audience: response has no custom_audience_id"))
	}
	return out.Data.CustomAudienceID, nil
}

// UploadBatch appends the batch's email and phone hashes, one request per
// identifier type.
func (c *TikTokClient) UploadBatch(ctx context.Context, audienceID string, batch []identity.HashedUser) (int, error) {
	users := nonEmpty(batch)
	if len(users) == 0 {
		return 0, nil
	}
	if c.simulated {
		return len(users), nil
	}

	var emails, phones []map[string]interface{}
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, map[string]interface{}{"id": u.Email, "audience_ids": []string{audienceID}})
		}
		if u.Phone != "" {
			phones = append(phones, map[string]interface{}{"id": u.Phone, "audience_ids": []string{audienceID}})
		}
	}

	for _, part := range []struct {
		idType string
		ids    []map[string]interface{}
	}{
		{"SHA256_EMAIL", emails},
		{"SHA256_PHONE", phones},
	} {
		if len(part.ids) == 0 {
			continue
		}
		body := map[string]interface{}{
			"advertiser_id": c.cfg.AdvertiserID,
			"action":        "APPEND",
			"id_type":       part.idType,
			"id_data_list":  part.ids,
		}
		if err := c.api.doRequest(ctx, http.MethodPost, "/dmp/custom_audience/update/", nil, body, nil); err != nil {
			return 0, fmt.Errorf("tiktok update audience (%s): %w", strings.ToLower(part.idType), err)
		}
	}
	return len(users), nil
}

// GetAudienceStatus reads the audience's name, cover size and status.
func (c *TikTokClient) GetAudienceStatus(ctx context.Context, audienceID string) AudienceStatus {
	st := AudienceStatus{Platform: domain.PlatformTikTok, ID: audienceID}
	if c.simulated {
		st.Status = StatusReady
		return st
	}

	ids, _ := json.Marshal([]string{audienceID})
	q := url.Values{
		"advertiser_id":       {c.cfg.AdvertiserID},
		"custom_audience_ids": {string(ids)},
	}
	var out struct {
		Data struct {
			List []struct {
				Name      string `json:"name"`
				CoverNum  int64  `json:"cover_num"`
				IsValid   *bool  `json:"is_valid"`
				IsExpired bool   `json:"is_expired"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := c.api.doRequest(ctx, http.MethodGet, "/dmp/custom_audience/get/", q, nil, &out); err != nil {
		return failedStatus(st, err, func(e error) bool {
			var te *tiktokAPIError
			return errors.As(e, &te) && te.Code == tiktokCodeNotFound
		})
	}
	if len(out.Data.List) == 0 {
		st.Status = StatusNotFound
		return st
	}
	a := out.Data.List[0]
	st.Name = a.Name
	st.Size = a.CoverNum
	switch {
	case a.IsExpired:
		st.Status = "EXPIRED"
	case a.IsValid != nil && !*a.IsValid:
		st.Status = "CALCULATING"
	default:
		st.Status = StatusReady
	}
	return st
}
