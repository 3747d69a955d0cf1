package activation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
)

// recorder captures request bodies by path.
type recorder struct {
	mu     sync.Mutex
	bodies map[string][]map[string]any
}

func newRecorder() *recorder {
	return &recorder{bodies: map[string][]map[string]any{}}
}

func (rec *recorder) capture(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	assert.NoError(t, err)
	var body map[string]any
	if len(data) > 0 {
		assert.NoError(t, json.Unmarshal(data, &body))
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.bodies[r.URL.Path] = append(rec.bodies[r.URL.Path], body)
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var twoUsers = []identity.HashedUser{
	{Email: "e1", Phone: "p1"},
	{Email: "e2"},
	{},
}

// ==========================================
// META
// ==========================================

func newMetaServer(t *testing.T, rec *recorder) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := rec.capture(t, r)
		assert.Equal(t, "Bearer meta-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v18.0/act_123":
			writeJSON(w, 200, map[string]any{"id": "act_123", "name": "Acme"})
		case r.Method == http.MethodPost && r.URL.Path == "/v18.0/act_123/customaudiences":
			assert.Equal(t, "USER_PROVIDED_ONLY", body["customer_file_source"])
			writeJSON(w, 200, map[string]any{"id": "aud_1"})
		case r.Method == http.MethodPost && r.URL.Path == "/v18.0/aud_1/users":
			payload := body["payload"].(map[string]any)
			data := payload["data"].([]any)
			writeJSON(w, 200, map[string]any{"num_received": len(data), "num_invalid_entries": 0})
		case r.Method == http.MethodGet && r.URL.Path == "/v18.0/aud_1":
			writeJSON(w, 200, map[string]any{
				"name":                          "CDP_vip",
				"approximate_count_lower_bound": 1000,
				"operation_status":              map[string]any{"code": 200, "description": "Normal"},
			})
		case r.URL.Path == "/v18.0/missing":
			writeJSON(w, 400, map[string]any{"error": map[string]any{"message": "Unsupported get request", "code": 100}})
		case r.URL.Path == "/v18.0/throttled/users":
			writeJSON(w, 400, map[string]any{"error": map[string]any{"message": "User request limit reached", "code": 17}})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestMetaClient_Flow(t *testing.T) {
	rec := newRecorder()
	srv := newMetaServer(t, rec)
	defer srv.Close()

	c := NewMetaClient(config.MetaConfig{AccessToken: "meta-token", AdAccountID: "123", BaseURL: srv.URL}, srv.Client())
	require.False(t, c.Simulated())
	ctx := context.Background()

	require.NoError(t, c.Authenticate(ctx))

	id, err := c.CreateAudience(ctx, "CDP_vip", "")
	require.NoError(t, err)
	assert.Equal(t, "aud_1", id)

	n, err := c.UploadBatch(ctx, id, twoUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := rec.bodies["/v18.0/aud_1/users"][0]["payload"].(map[string]any)
	assert.Equal(t, []any{"EMAIL_SHA256", "PHONE_SHA256"}, sent["schema"])
	assert.Equal(t, []any{[]any{"e1", "p1"}, []any{"e2", ""}}, sent["data"])

	st := c.GetAudienceStatus(ctx, id)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, int64(1000), st.Size)
	assert.Equal(t, "CDP_vip", st.Name)
}

func TestMetaClient_ErrorClassification(t *testing.T) {
	srv := newMetaServer(t, newRecorder())
	defer srv.Close()
	c := NewMetaClient(config.MetaConfig{AccessToken: "meta-token", AdAccountID: "act_123", BaseURL: srv.URL}, srv.Client())

	_, err := c.UploadBatch(context.Background(), "throttled", twoUsers)
	var rl *httpretry.RateLimitError
	assert.True(t, errors.As(err, &rl), "got %v", err)

	st := c.GetAudienceStatus(context.Background(), "missing")
	assert.Equal(t, StatusNotFound, st.Status)
	assert.NotEmpty(t, st.Error)
}

func TestMetaClient_SimulatedWithoutCredentials(t *testing.T) {
	c := NewMetaClient(config.MetaConfig{}, nil)
	require.True(t, c.Simulated())
	ctx := context.Background()

	require.NoError(t, c.Authenticate(ctx))
	id, err := c.CreateAudience(ctx, "CDP_vip", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "sim_meta_"), id)

	n, err := c.UploadBatch(ctx, id, twoUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// ==========================================
// GOOGLE
// ==========================================

func newGoogleServer(t *testing.T, rec *recorder, tokenCalls *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			assert.NoError(t, r.ParseForm())
			*tokenCalls++
			if r.PostForm.Get("refresh_token") != "refresh" {
				writeJSON(w, 400, map[string]any{"error": "invalid_grant"})
				return
			}
			writeJSON(w, 200, map[string]any{"access_token": "access", "token_type": "Bearer", "expires_in": 3600})
			return
		}

		body := rec.capture(t, r)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))
		assert.Equal(t, "9876543210", r.Header.Get("login-customer-id"))

		switch r.URL.Path {
		case "/v16/customers/1234567890/userLists:mutate":
			writeJSON(w, 200, map[string]any{"results": []any{map[string]any{"resourceName": "customers/1234567890/userLists/42"}}})
		case "/v16/customers/1234567890/offlineUserDataJobs:create":
			job := body["job"].(map[string]any)
			assert.Equal(t, "CUSTOMER_MATCH_USER_LIST", job["type"])
			writeJSON(w, 200, map[string]any{"resourceName": "customers/1234567890/offlineUserDataJobs/7"})
		case "/v16/customers/1234567890/offlineUserDataJobs/7:addOperations",
			"/v16/customers/1234567890/offlineUserDataJobs/7:run":
			writeJSON(w, 200, map[string]any{})
		case "/v16/customers/1234567890/googleAds:search":
			assert.Contains(t, body["query"], "customers/1234567890/userLists/42")
			writeJSON(w, 200, map[string]any{"results": []any{map[string]any{
				"userList": map[string]any{"name": "CDP_vip", "sizeForDisplay": "5000", "membershipStatus": "OPEN"},
			}}})
		case "/v16/customers/1234567890/quota:mutate":
			writeJSON(w, 429, map[string]any{"error": map[string]any{"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}})
		default:
			http.NotFound(w, r)
		}
	}))
}

func googleConfig(baseURL string) config.GoogleConfig {
	return config.GoogleConfig{
		DeveloperToken:  "dev-token",
		ClientID:        "client",
		ClientSecret:    "secret",
		RefreshToken:    "refresh",
		CustomerID:      "123-456-7890",
		LoginCustomerID: "987-654-3210",
		BaseURL:         baseURL,
		TokenURL:        baseURL + "/token",
	}
}

func TestGoogleClient_Flow(t *testing.T) {
	rec := newRecorder()
	var tokenCalls int
	srv := newGoogleServer(t, rec, &tokenCalls)
	defer srv.Close()

	c := NewGoogleClient(googleConfig(srv.URL), srv.Client())
	require.False(t, c.Simulated())
	ctx := context.Background()

	require.NoError(t, c.Authenticate(ctx))

	id, err := c.CreateAudience(ctx, "CDP_vip", "vip customers")
	require.NoError(t, err)
	assert.Equal(t, "customers/1234567890/userLists/42", id)

	n, err := c.UploadBatch(ctx, id, twoUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	add := rec.bodies["/v16/customers/1234567890/offlineUserDataJobs/7:addOperations"][0]
	ops := add["operations"].([]any)
	require.Len(t, ops, 2)
	first := ops[0].(map[string]any)["create"].(map[string]any)["userIdentifiers"].([]any)
	assert.Equal(t, []any{
		map[string]any{"hashedEmail": "e1"},
		map[string]any{"hashedPhoneNumber": "p1"},
	}, first)
	assert.Len(t, rec.bodies["/v16/customers/1234567890/offlineUserDataJobs/7:run"], 1)

	st := c.GetAudienceStatus(ctx, id)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, int64(5000), st.Size)

	// the access token is reused across calls
	assert.Equal(t, 1, tokenCalls)
}

func TestGoogleClient_BadRefreshTokenIsPermanent(t *testing.T) {
	var tokenCalls int
	srv := newGoogleServer(t, newRecorder(), &tokenCalls)
	defer srv.Close()

	cfg := googleConfig(srv.URL)
	cfg.RefreshToken = "revoked"
	c := NewGoogleClient(cfg, srv.Client())

	err := c.Authenticate(context.Background())
	require.Error(t, err)
	var pe *httpretry.PermanentError
	assert.True(t, errors.As(err, &pe), "got %v", err)
}

func TestGoogleClient_ResourceExhaustedIsRateLimit(t *testing.T) {
	var tokenCalls int
	srv := newGoogleServer(t, newRecorder(), &tokenCalls)
	defer srv.Close()
	c := NewGoogleClient(googleConfig(srv.URL), srv.Client())

	err := c.api.doRequest(context.Background(), http.MethodPost, "/customers/1234567890/quota:mutate", nil, map[string]any{}, nil)
	var rl *httpretry.RateLimitError
	assert.True(t, errors.As(err, &rl), "got %v", err)
}

func TestGoogleClient_JobWithoutResourceNameIsPermanent(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			writeJSON(w, 200, map[string]any{"access_token": "access", "token_type": "Bearer", "expires_in": 3600})
			return
		}
		paths = append(paths, r.URL.Path)
		writeJSON(w, 200, map[string]any{})
	}))
	defer srv.Close()

	c := NewGoogleClient(googleConfig(srv.URL), srv.Client())
	n, err := c.UploadBatch(context.Background(), "customers/1234567890/userLists/42", twoUsers)
	require.Error(t, err)
	assert.Zero(t, n)
	var pe *httpretry.PermanentError
	assert.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, []string{"/v16/customers/1234567890/offlineUserDataJobs:create"}, paths, "no operations sent to an unnamed job")
}

func TestGoogleClient_SimulatedWithoutCredentials(t *testing.T) {
	c := NewGoogleClient(config.GoogleConfig{CustomerID: "123"}, nil)
	require.True(t, c.Simulated())

	id, err := c.CreateAudience(context.Background(), "CDP_vip", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "customers/123/userLists/sim_google_"), id)
	assert.Equal(t, StatusReady, c.GetAudienceStatus(context.Background(), id).Status)
}

// ==========================================
// TIKTOK
// ==========================================

func newTikTokServer(t *testing.T, rec *recorder, throttlePhone bool) *httptest.Server {
	ok := func(w http.ResponseWriter, data any) {
		writeJSON(w, 200, map[string]any{"code": 0, "message": "OK", "data": data})
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := rec.capture(t, r)
		assert.Equal(t, "tt-token", r.Header.Get("Access-Token"))
		switch r.URL.Path {
		case "/advertiser/info/":
			assert.Equal(t, `["adv1"]`, r.URL.Query().Get("advertiser_ids"))
			ok(w, map[string]any{"list": []any{}})
		case "/dmp/custom_audience/create/":
			assert.Equal(t, "CDP_vip", body["custom_audience_name"])
			ok(w, map[string]any{"custom_audience_id": "ta_1"})
		case "/dmp/custom_audience/update/":
			if throttlePhone && body["id_type"] == "SHA256_PHONE" {
				writeJSON(w, 200, map[string]any{"code": 40100, "message": "Too many requests"})
				return
			}
			ok(w, map[string]any{})
		case "/dmp/custom_audience/get/":
			if strings.Contains(r.URL.Query().Get("custom_audience_ids"), "gone") {
				writeJSON(w, 200, map[string]any{"code": 40002, "message": "audience does not exist"})
				return
			}
			ok(w, map[string]any{"list": []any{map[string]any{"name": "CDP_vip", "cover_num": 321, "is_valid": true}}})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestTikTokClient_Flow(t *testing.T) {
	rec := newRecorder()
	srv := newTikTokServer(t, rec, false)
	defer srv.Close()

	c := NewTikTokClient(config.TikTokConfig{AccessToken: "tt-token", AdvertiserID: "adv1", BaseURL: srv.URL}, srv.Client())
	ctx := context.Background()

	require.NoError(t, c.Authenticate(ctx))
	id, err := c.CreateAudience(ctx, "CDP_vip", "")
	require.NoError(t, err)
	assert.Equal(t, "ta_1", id)

	n, err := c.UploadBatch(ctx, id, twoUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	updates := rec.bodies["/dmp/custom_audience/update/"]
	require.Len(t, updates, 2)
	assert.Equal(t, "SHA256_EMAIL", updates[0]["id_type"])
	assert.Len(t, updates[0]["id_data_list"], 2)
	assert.Equal(t, "SHA256_PHONE", updates[1]["id_type"])
	assert.Len(t, updates[1]["id_data_list"], 1)
	assert.Equal(t, "APPEND", updates[1]["action"])

	st := c.GetAudienceStatus(ctx, id)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, int64(321), st.Size)

	assert.Equal(t, StatusNotFound, c.GetAudienceStatus(ctx, "gone").Status)
}

func TestTikTokClient_EnvelopeRateLimit(t *testing.T) {
	srv := newTikTokServer(t, newRecorder(), true)
	defer srv.Close()

	c := NewTikTokClient(config.TikTokConfig{AccessToken: "tt-token", AdvertiserID: "adv1", BaseURL: srv.URL}, srv.Client())
	_, err := c.UploadBatch(context.Background(), "ta_1", twoUsers)
	var rl *httpretry.RateLimitError
	assert.True(t, errors.As(err, &rl), "got %v", err)
}

func TestInspectTikTok(t *testing.T) {
	assert.NoError(t, inspectTikTok(200, http.Header{}, []byte(`{"code":0,"message":"OK"}`)))
	assert.NoError(t, inspectTikTok(502, http.Header{}, []byte(`<html>bad gateway</html>`)))

	var re *httpretry.RetryableError
	assert.True(t, errors.As(inspectTikTok(200, http.Header{}, []byte(`{"code":50002,"message":"busy"}`)), &re))

	var pe *httpretry.PermanentError
	assert.True(t, errors.As(inspectTikTok(200, http.Header{}, []byte(`{"code":40001,"message":"bad param"}`)), &pe))
}

// ==========================================
// REGISTRY
// ==========================================

func TestNewClient(t *testing.T) {
	cfg := config.Default()
	for _, p := range domain.Platforms() {
		c, err := NewClient(p, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, p, c.Platform())
		assert.True(t, c.Simulated())
	}

	_, err := NewClient("snapchat", cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	clients, err := NewClients([]string{"Meta", "tiktok"}, cfg, nil)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, TikTokBatchSize, clients[1].BatchSize())

	_, err = NewClients([]string{"meta", "myspace"}, cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}
