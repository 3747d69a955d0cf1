package activation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
)

// googleAPIError is the google.rpc.Status error envelope body.
type googleAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *googleAPIError) Error() string {
	return fmt.Sprintf("google ads: %s: %s", e.Status, e.Message)
}

func inspectGoogle(status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var env struct {
		Error *googleAPIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	e := env.Error
	switch e.Status {
	case "RESOURCE_EXHAUSTED":
		return &httpretry.RateLimitError{
			StatusCode: status,
			RetryAfter: httpretry.ParseRetryAfter(header.Get("Retry-After"), timeNow()),
			Message:    e.Error(),
		}
	case "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED", "ABORTED":
		return &httpretry.RetryableError{StatusCode: status, Err: e}
	case "NOT_FOUND":
		return &httpretry.PermanentError{StatusCode: http.StatusNotFound, Err: e}
	}
	return nil
}

// classifyTokenError maps an OAuth2 refresh failure onto the retry taxonomy.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if cerr := httpretry.Classify(re.Response.StatusCode, re.Response.Header, re.Body); cerr != nil {
			return fmt.Errorf("refreshing oauth2 token: %w", cerr)
		}
	}
	return httpretry.ClassifyTransportError(fmt.Errorf("refreshing oauth2 token: %w", err))
}

// GoogleClient manages Customer Match user lists through the Google Ads REST
// interface, authenticating with an OAuth2 refresh token.
type GoogleClient struct {
	cfg        config.GoogleConfig
	customerID string
	api        *restClient
	tokens     oauth2.TokenSource
	simulated  bool
}

// NewGoogleClient creates a Google Ads client. Without a developer token,
// OAuth2 client and refresh token it runs simulated.
func NewGoogleClient(cfg config.GoogleConfig, httpClient httpretry.HTTPDoer) *GoogleClient {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v16"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://googleads.googleapis.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	tokenCtx := context.Background()
	if hc, ok := httpClient.(*http.Client); ok {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, hc)
	}

	c := &GoogleClient{
		cfg:        cfg,
		customerID: digitsOnly(cfg.CustomerID),
		tokens:     oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
		simulated:  !cfg.IsValid(),
	}
	c.api = &restClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		httpClient: httpClient,
		authorize:  c.authorize,
		inspect:    inspectGoogle,
	}
	return c
}

func (c *GoogleClient) Platform() domain.Platform { return domain.PlatformGoogle }
func (c *GoogleClient) BatchSize() int            { return GoogleBatchSize }
func (c *GoogleClient) Simulated() bool           { return c.simulated }

func (c *GoogleClient) authorize(_ context.Context, req *http.Request) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return classifyTokenError(err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", digitsOnly(c.cfg.LoginCustomerID))
	}
	return nil
}

// Authenticate exchanges the refresh token for an access token.
func (c *GoogleClient) Authenticate(ctx context.Context) error {
	if c.simulated {
		logger.Info("google: running simulated, credentials not configured")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.tokens.Token(); err != nil {
		return fmt.Errorf("google authenticate: %w", classifyTokenError(err))
	}
	return nil
}

// CreateAudience creates a CRM-based user list and returns its resource name.
func (c *GoogleClient) CreateAudience(ctx context.Context, name, description string) (string, error) {
	if c.simulated {
		return fmt.Sprintf("customers/%s/userLists/%s", c.customerID, simulatedID(domain.PlatformGoogle)), nil
	}
	if description == "" {
		description = "Created by CDP"
	}
	body := map[string]interface{}{
		"operations": []interface{}{
			map[string]interface{}{
				"create": map[string]interface{}{
					"name":               name,
					"description":        description,
					"membershipLifeSpan": 10000,
					"crmBasedUserList": map[string]interface{}{
						"uploadKeyType": "CONTACT_INFO",
					},
				},
			},
		},
	}
	var out struct {
		Results []struct {
			ResourceName string `json:"resourceName"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/customers/%s/userLists:mutate", c.customerID)
	if err := c.api.doRequest(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return "", fmt.Errorf("google create user list: %w", err)
	}
	if len(out.Results) == 0 || out.Results[0].ResourceName == "" {
		return "", httpretry.Permanent(errors.New("google create user list: empty result"))
	}
	return out.Results[0].ResourceName, nil
}

// UploadBatch runs one offline user data job holding the batch.
func (c *GoogleClient) UploadBatch(ctx context.Context, audienceID string, batch []identity.HashedUser) (int, error) {
	users := nonEmpty(batch)
	if len(users) == 0 {
		return 0, nil
	}
	if c.simulated {
		return len(users), nil
	}

	job := map[string]interface{}{
		"job": map[string]interface{}{
			"type": "CUSTOMER_MATCH_USER_LIST",
			"customerMatchUserListMetadata": map[string]interface{}{
				"userList": audienceID,
			},
		},
	}
	var created struct {
		ResourceName string `json:"resourceName"`
	}
	path := fmt.Sprintf("/customers/%s/offlineUserDataJobs:create", c.customerID)
	if err := c.api.doRequest(ctx, http.MethodPost, path, nil, job, &created); err != nil {
		return 0, fmt.Errorf("google create job: %w", err)
	}
	if created.ResourceName == "" {
		return 0, httpretry.Permanent(errors.New("google create job: empty resource name"))
	}

	ops := make([]interface{}, 0, len(users))
	for _, u := range users {
		var ids []map[string]string
		if u.Email != "" {
			ids = append(ids, map[string]string{"hashedEmail": u.Email})
		}
		if u.Phone != "" {
			ids = append(ids, map[string]string{"hashedPhoneNumber": u.Phone})
		}
		ops = append(ops, map[string]interface{}{
			"create": map[string]interface{}{"userIdentifiers": ids},
		})
	}
	add := map[string]interface{}{"enablePartialFailure": true, "operations": ops}
	if err := c.api.doRequest(ctx, http.MethodPost, "/"+created.ResourceName+":addOperations", nil, add, nil); err != nil {
		return 0, fmt.Errorf("google add operations: %w", err)
	}
	if err := c.api.doRequest(ctx, http.MethodPost, "/"+created.ResourceName+":run", nil, map[string]interface{}{}, nil); err != nil {
		return 0, fmt.Errorf("google run job: %w", err)
	}
	return len(users), nil
}

// GetAudienceStatus searches the user list by resource name.
func (c *GoogleClient) GetAudienceStatus(ctx context.Context, audienceID string) AudienceStatus {
	st := AudienceStatus{Platform: domain.PlatformGoogle, ID: audienceID}
	if c.simulated {
		st.Status = StatusReady
		return st
	}

	query := fmt.Sprintf(
		"SELECT user_list.id, user_list.name, user_list.size_for_display, user_list.membership_status FROM user_list WHERE user_list.resource_name = '%s'",
		strings.ReplaceAll(audienceID, "'", `\'`),
	)
	var out struct {
		Results []struct {
			UserList struct {
				Name             string `json:"name"`
				SizeForDisplay   int64  `json:"sizeForDisplay,string"`
				MembershipStatus string `json:"membershipStatus"`
			} `json:"userList"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/customers/%s/googleAds:search", c.customerID)
	if err := c.api.doRequest(ctx, http.MethodPost, path, nil, map[string]string{"query": query}, &out); err != nil {
		return failedStatus(st, err, nil)
	}
	if len(out.Results) == 0 {
		st.Status = StatusNotFound
		return st
	}
	ul := out.Results[0].UserList
	st.Name = ul.Name
	st.Size = ul.SizeForDisplay
	st.Status = ul.MembershipStatus
	if st.Status == "" || st.Status == "OPEN" {
		st.Status = StatusReady
	}
	return st
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
