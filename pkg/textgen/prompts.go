package textgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Sentiment is the classification of one tweet relative to a campaign topic.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// SearchQuery asks the generator for a short keyword query matching the
// campaign topic. A non-empty stance steers the query toward the
// conversations the campaign wants to join.
func SearchQuery(ctx context.Context, g Generator, topic, stance string) (string, error) {
	prompt := fmt.Sprintf(
		"Produce a short Twitter search query (keywords only, no operators, no quotes) "+
			"to find recent tweets discussing the following topic.%s "+
			"Reply with the query text only.\n\nTopic: %s",
		stanceClause(stance), topic,
	)
	out, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"'`), nil
}

// ClassifyTweets asks the generator to label each tweet's sentiment
// toward the topic. The result has one entry per input tweet. When a
// stance is given, "negative" means opposing that stance.
func ClassifyTweets(ctx context.Context, g Generator, topic, stance string, tweets []string) ([]Sentiment, error) {
	if len(tweets) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb,
		"Classify each tweet below as \"positive\", \"negative\" or \"neutral\" toward the topic %q.%s "+
			"Reply with a JSON array of strings, one per tweet, in order, and nothing else.\n\n",
		topic, stanceClause(stance))
	for i, t := range tweets {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t)
	}

	out, err := g.Generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var labels []string
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}
	if len(labels) != len(tweets) {
		return nil, fmt.Errorf("classification returned %d labels for %d tweets", len(labels), len(tweets))
	}

	sentiments := make([]Sentiment, len(labels))
	for i, l := range labels {
		switch Sentiment(strings.ToLower(strings.TrimSpace(l))) {
		case SentimentPositive:
			sentiments[i] = SentimentPositive
		case SentimentNegative:
			sentiments[i] = SentimentNegative
		default:
			sentiments[i] = SentimentNeutral
		}
	}
	return sentiments, nil
}

// ReplyComments asks the generator for one reply per tweet, promoting
// the topic without sounding automated.
func ReplyComments(ctx context.Context, g Generator, topic, stance string, tweets []string) ([]string, error) {
	if len(tweets) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb,
		"Write one short reply (under 280 characters) for each tweet below, gently making the case for %q.%s "+
			"Be conversational, no hashtags, no emoji spam. "+
			"Reply with a JSON array of strings, one per tweet, in order, and nothing else.\n\n",
		topic, stanceClause(stance))
	for i, t := range tweets {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t)
	}

	out, err := g.Generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var replies []string
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &replies); err != nil {
		return nil, fmt.Errorf("failed to parse reply response: %w", err)
	}
	if len(replies) != len(tweets) {
		return nil, fmt.Errorf("reply generation returned %d replies for %d tweets", len(replies), len(tweets))
	}
	return replies, nil
}

// TrendingTitle asks the generator for a short campaign title.
func TrendingTitle(ctx context.Context, g Generator, topic string) (string, error) {
	prompt := fmt.Sprintf(
		"Give a catchy title of at most 8 words for a campaign about the following topic. "+
			"Reply with the title only.\n\nTopic: %s",
		topic,
	)
	out, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"'`), nil
}

func stanceClause(stance string) string {
	if strings.TrimSpace(stance) == "" {
		return ""
	}
	return fmt.Sprintf(" The campaign's stance on the topic is: %s.", stance)
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models add around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
