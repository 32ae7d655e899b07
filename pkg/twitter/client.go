// Package twitter implements a thin client for the Twitter v2 API.
//
// The client deliberately does not interpret HTTP failures beyond parsing
// them into APIError values: deciding whether a failure locks an account,
// rotates to the next one, or aborts the operation is the dispatcher's job.
// Only pure network errors are retried here.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"xpromo/pkg/config"
	"xpromo/pkg/errors"
	"xpromo/pkg/logger"
	"xpromo/pkg/retry"
)

// DefaultBaseURL is the production Twitter API v2 endpoint.
const DefaultBaseURL = "https://api.twitter.com/2"

const tweetFields = "author_id,created_at,conversation_id,public_metrics,text"

// Client talks to the Twitter v2 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewClient creates a Twitter API client from config.
func NewClient(cfg *config.TwitterConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: baseURL,
		timeout: cfg.Timeout,
		retryCfg: &retry.Config{
			MaxAttempts: cfg.MaxRetries + 1,
			Backoff:     retry.DefaultExponentialBackoff(),
			RetryIf:     isNetworkError,
			Logger:      log,
		},
		logger: log,
	}
}

func isNetworkError(err error) bool {
	if apiErr, ok := err.(*errors.Error); ok {
		return apiErr.Type == errors.TypeNetwork
	}
	return false
}

// SearchRecent searches recent tweets matching the query using app-only
// bearer auth. Results are sorted by engagement, highest first, and
// trimmed to maxResults.
func (c *Client) SearchRecent(ctx context.Context, query string, maxResults int, bearerToken string) (*FetchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("tweet.fields", tweetFields)
	reqURL := c.baseURL + "/tweets/search/recent?" + params.Encode()

	c.logger.DebugWithFields("searching recent tweets", map[string]interface{}{
		"query":       query,
		"max_results": maxResults,
	})

	var result *FetchResult
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return &errors.Error{Type: errors.TypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
		}
		req.Header.Set("Authorization", "Bearer "+bearerToken)

		resp, err := c.do(c.httpClient, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errors.Error{Type: errors.TypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Code: resp.StatusCode}
		}

		rateLimit := parseRateLimit(resp.Header)

		if resp.StatusCode != http.StatusOK {
			return apiErrorFrom(resp.StatusCode, resp.Header, body)
		}

		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return &errors.Error{Type: errors.TypeParsing, Message: fmt.Sprintf("failed to parse search response: %v", err), Code: resp.StatusCode}
		}

		tweets := parsed.Data
		sort.SliceStable(tweets, func(i, j int) bool {
			return tweets[i].EngagementScore() > tweets[j].EngagementScore()
		})
		if len(tweets) > maxResults {
			tweets = tweets[:maxResults]
		}

		result = &FetchResult{Tweets: tweets, RateLimit: rateLimit}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("search completed", map[string]interface{}{
		"query":   query,
		"results": len(result.Tweets),
	})

	return result, nil
}

// PostReply creates a tweet replying to tweetID, signed with the
// account's OAuth1 user-context credentials.
func (c *Client) PostReply(ctx context.Context, tweetID, text string, creds Credentials) (*Reply, error) {
	payload, err := json.Marshal(createTweetRequest{
		Text:  text,
		Reply: &replyRef{InReplyToTweetID: tweetID},
	})
	if err != nil {
		return nil, &errors.Error{Type: errors.TypeUnknown, Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	oauthCfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	signingClient := oauthCfg.Client(ctx, token)
	signingClient.Timeout = c.timeout

	c.logger.DebugWithFields("posting reply", map[string]interface{}{
		"in_reply_to": tweetID,
	})

	var reply *Reply
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(payload))
		if err != nil {
			return &errors.Error{Type: errors.TypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(signingClient, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errors.Error{Type: errors.TypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Code: resp.StatusCode}
		}

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return apiErrorFrom(resp.StatusCode, resp.Header, body)
		}

		var parsed createTweetResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return &errors.Error{Type: errors.TypeParsing, Message: fmt.Sprintf("failed to parse create response: %v", err), Code: resp.StatusCode}
		}

		// The create endpoint does not echo a creation timestamp.
		reply = &Reply{
			ID:        parsed.Data.ID,
			Text:      parsed.Data.Text,
			CreatedAt: time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("reply posted", map[string]interface{}{
		"tweet_id":    reply.ID,
		"in_reply_to": tweetID,
	})

	return reply, nil
}

// do performs an HTTP request, converting transport failures into typed
// network errors.
func (c *Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errors.Error{
			Type:    errors.TypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// apiErrorFrom builds an APIError from a non-2xx response.
func apiErrorFrom(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Title = parsed.Title
		apiErr.Detail = parsed.Detail
		apiErr.Period = parsed.Period
	}

	if reset := header.Get("x-rate-limit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			apiErr.RateLimitReset = time.Unix(epoch, 0).UTC()
		}
	}

	return apiErr
}

// parseRateLimit reads the rate-limit headers off a response.
func parseRateLimit(header http.Header) RateLimit {
	var rl RateLimit
	if v, err := strconv.Atoi(header.Get("x-rate-limit-limit")); err == nil {
		rl.Limit = v
	}
	if v, err := strconv.Atoi(header.Get("x-rate-limit-remaining")); err == nil {
		rl.Remaining = v
	}
	if epoch, err := strconv.ParseInt(header.Get("x-rate-limit-reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(epoch, 0).UTC()
	}
	return rl
}
