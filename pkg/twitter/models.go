package twitter

import (
	"fmt"
	"time"
)

// Tweet is a single tweet returned by the recent search endpoint.
type Tweet struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	AuthorID       string  `json:"author_id"`
	ConversationID string  `json:"conversation_id"`
	CreatedAt      string  `json:"created_at"`
	PublicMetrics  Metrics `json:"public_metrics"`
}

// Metrics holds the public engagement counters of a tweet.
type Metrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

// EngagementScore ranks tweets by retweets plus likes.
func (t Tweet) EngagementScore() int {
	return t.PublicMetrics.RetweetCount + t.PublicMetrics.LikeCount
}

// RateLimit reports the upstream rate-limit window as read from response headers.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// FetchResult bundles the tweets of a search with the rate-limit state
// observed on the response.
type FetchResult struct {
	Tweets    []Tweet
	RateLimit RateLimit
}

// Reply is a tweet created by PostReply.
type Reply struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Credentials holds the OAuth1 user-context keys required for write calls.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Usage-cap periods reported in upstream error bodies.
const (
	PeriodMonthly = "Monthly"
	PeriodDaily   = "24hour"
)

// APIError is a non-2xx upstream response. It carries the parsed error
// body plus the x-rate-limit-reset header when the server sent one, which
// is everything callers need to decide how to handle the failure.
type APIError struct {
	Status         int
	Title          string
	Detail         string
	Period         string
	RateLimitReset time.Time
}

func (e *APIError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("twitter: %s (status %d)", e.Title, e.Status)
	}
	return fmt.Sprintf("twitter: unexpected status %d", e.Status)
}

// IsUsageCap reports whether the error is a plan usage-cap rejection.
func (e *APIError) IsUsageCap() bool {
	return e.Title == "UsageCapExceeded"
}

// HasRateLimitReset reports whether the server told us when the
// rate-limit window reopens.
func (e *APIError) HasRateLimitReset() bool {
	return !e.RateLimitReset.IsZero()
}

type searchResponse struct {
	Data []Tweet `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type errorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Period string `json:"period"`
	Status int    `json:"status"`
}

type createTweetRequest struct {
	Text  string    `json:"text"`
	Reply *replyRef `json:"reply,omitempty"`
}

type replyRef struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
