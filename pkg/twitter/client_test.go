package twitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpromo/pkg/config"
	"xpromo/pkg/logger"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.TwitterConfig{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	}, logger.NewNopLogger())
}

func TestSearchRecentSortsByEngagement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
		assert.Equal(t, "golang", r.URL.Query().Get("query"))

		w.Header().Set("x-rate-limit-limit", "450")
		w.Header().Set("x-rate-limit-remaining", "449")
		w.Header().Set("x-rate-limit-reset", "1756400000")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "low", "public_metrics": {"retweet_count": 1, "like_count": 2}},
				{"id": "2", "text": "high", "public_metrics": {"retweet_count": 50, "like_count": 100}},
				{"id": "3", "text": "mid", "public_metrics": {"retweet_count": 10, "like_count": 10}}
			],
			"meta": {"result_count": 3}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.SearchRecent(context.Background(), "golang", 10, "test-bearer")
	require.NoError(t, err)

	require.Len(t, result.Tweets, 3)
	assert.Equal(t, "2", result.Tweets[0].ID)
	assert.Equal(t, "3", result.Tweets[1].ID)
	assert.Equal(t, "1", result.Tweets[2].ID)

	assert.Equal(t, 450, result.RateLimit.Limit)
	assert.Equal(t, 449, result.RateLimit.Remaining)
	assert.Equal(t, time.Unix(1756400000, 0).UTC(), result.RateLimit.Reset)
}

func TestSearchRecentTrimsToMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [
			{"id": "1", "public_metrics": {"like_count": 3}},
			{"id": "2", "public_metrics": {"like_count": 2}},
			{"id": "3", "public_metrics": {"like_count": 1}}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.SearchRecent(context.Background(), "q", 2, "bearer")
	require.NoError(t, err)
	require.Len(t, result.Tweets, 2)
	assert.Equal(t, "1", result.Tweets[0].ID)
}

func TestSearchRecentUsageCapError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title": "UsageCapExceeded", "period": "Monthly", "detail": "Usage cap exceeded: Monthly product cap"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchRecent(context.Background(), "q", 10, "bearer")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.True(t, apiErr.IsUsageCap())
	assert.Equal(t, PeriodMonthly, apiErr.Period)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.False(t, apiErr.HasRateLimitReset())
}

func TestSearchRecentRateLimitResetHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", "1756400999")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title": "TooManyRequests"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchRecent(context.Background(), "q", 10, "bearer")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.False(t, apiErr.IsUsageCap())
	assert.True(t, apiErr.HasRateLimitReset())
	assert.Equal(t, time.Unix(1756400999, 0).UTC(), apiErr.RateLimitReset)
}

func TestSearchRecentDoesNotRetryHTTPErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(&config.TwitterConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	}, logger.NewNopLogger())

	_, err := client.SearchRecent(context.Background(), "q", 10, "bearer")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "HTTP-level failures must surface to the caller, not be retried")
}

func TestPostReplySignsWithOAuth1(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tweets", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		assert.Contains(t, r.Header.Get("Authorization"), `oauth_consumer_key="ck"`)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "9001", "text": "nice take"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	reply, err := client.PostReply(context.Background(), "123", "nice take", Credentials{
		APIKey:            "ck",
		APISecret:         "cs",
		AccessToken:       "at",
		AccessTokenSecret: "ats",
	})
	require.NoError(t, err)
	assert.Equal(t, "9001", reply.ID)
	assert.Equal(t, "nice take", reply.Text)
	assert.False(t, reply.CreatedAt.IsZero())
}

func TestPostReplyUsageCapError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title": "UsageCapExceeded", "period": "24hour"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.PostReply(context.Background(), "123", "text", Credentials{
		APIKey: "ck", APISecret: "cs", AccessToken: "at", AccessTokenSecret: "ats",
	})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsUsageCap())
	assert.Equal(t, PeriodDaily, apiErr.Period)
}
