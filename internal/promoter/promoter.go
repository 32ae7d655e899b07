// Package promoter runs promotion campaigns: it finds recent tweets on a
// topic, classifies their sentiment, and schedules staggered replies to
// the critical ones.
package promoter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"xpromo/pkg/agenda"
	"xpromo/pkg/config"
	"xpromo/pkg/dispatcher"
	"xpromo/pkg/logger"
	"xpromo/pkg/ratelimit"
	"xpromo/pkg/scheduler"
	"xpromo/pkg/textgen"
	"xpromo/pkg/twitter"
)

// ActionPostReply is the scheduled-job action for posting one reply.
const ActionPostReply = "post-reply-to-tweet"

// Fetch counts are clamped to this range before dispatch.
const (
	MinFetchCount = 10
	MaxFetchCount = 100
)

// Dispatcher is the slice of the bot-pool dispatcher the promoter uses.
type Dispatcher interface {
	FetchTweets(ctx context.Context, count int, query string) (*twitter.FetchResult, error)
	PostReply(ctx context.Context, tweetID, text string) (*dispatcher.PostResult, error)
}

// Enqueuer persists delayed jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, dueAt time.Time, action string, payload interface{}) (string, error)
}

// ReplyJobPayload is the payload of an ActionPostReply job.
type ReplyJobPayload struct {
	AgendaID      string `json:"agenda_id"`
	TweetID       string `json:"tweet_id"`
	Text          string `json:"text"`
	CorrelationID string `json:"correlation_id"`
}

// PromoteRequest describes one campaign run. When AgendaID is set the
// run targets that existing campaign and its stored prompt and stance;
// otherwise the agenda is found or created from (CreatedBy, Prompt).
// Replies are only scheduled when Post is set; without it the run stops
// at suggestions.
type PromoteRequest struct {
	CreatedBy string
	Prompt    string
	Stance    string
	AgendaID  string
	Count     int
	Post      bool
}

// ReplySuggestion is one generated reply and its target tweet.
type ReplySuggestion struct {
	TweetID   string
	TweetText string
	Comment   string
}

// PromoteResult summarizes a campaign run.
type PromoteResult struct {
	AgendaID    string
	Title       string
	Query       string
	Fetched     int
	Scheduled   int
	Suggestions []ReplySuggestion
	RateLimit   twitter.RateLimit
}

// Promoter orchestrates one campaign end to end.
type Promoter struct {
	dispatcher Dispatcher
	generator  textgen.Generator
	agendas    *agenda.Store
	jobs       Enqueuer
	limiter    ratelimit.Limiter
	log        logger.Logger

	replyStagger time.Duration
}

// New creates a promoter.
func New(d Dispatcher, g textgen.Generator, agendas *agenda.Store, jobs Enqueuer, limiter ratelimit.Limiter, cfg *config.SchedulerConfig, log logger.Logger) *Promoter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Promoter{
		dispatcher:   d,
		generator:    g,
		agendas:      agendas,
		jobs:         jobs,
		limiter:      limiter,
		log:          log,
		replyStagger: cfg.ReplyStagger,
	}
}

// RegisterHandlers binds the promoter's job handlers on the scheduler.
func (p *Promoter) RegisterHandlers(s *scheduler.Scheduler) {
	s.Register(ActionPostReply, p.HandlePostReply)
}

// Promote fetches tweets about the campaign prompt, classifies them,
// and generates one reply per negative tweet. With Post set the replies
// are enqueued as delayed jobs, staggered so each lands in its own
// sweep window; otherwise they are returned as suggestions only.
func (p *Promoter) Promote(ctx context.Context, req PromoteRequest) (*PromoteResult, error) {
	count := clampCount(req.Count)

	ag, created, err := p.resolveAgenda(ctx, req)
	if err != nil {
		return nil, err
	}
	topic, stance := ag.Prompt, ag.Stance

	query, err := textgen.SearchQuery(ctx, p.generator, topic, stance)
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}
	fullQuery := query + " -is:retweet -is:reply"

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	fetched, err := p.dispatcher.FetchTweets(ctx, count, fullQuery)
	if err != nil {
		return nil, err
	}

	p.log.InfoWithFields("fetched tweets for campaign", map[string]interface{}{
		"query": query,
		"count": len(fetched.Tweets),
	})

	texts := make([]string, len(fetched.Tweets))
	for i, t := range fetched.Tweets {
		texts[i] = t.Text
	}

	sentiments, err := textgen.ClassifyTweets(ctx, p.generator, topic, stance, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to classify tweets: %w", err)
	}

	var targets []twitter.Tweet
	var targetTexts []string
	for i, s := range sentiments {
		if s == textgen.SentimentNegative {
			targets = append(targets, fetched.Tweets[i])
			targetTexts = append(targetTexts, fetched.Tweets[i].Text)
		}
	}

	title := ag.Title
	if created || title == "" {
		title = p.campaignTitle(ctx, topic)
		if err := p.agendas.SetTitle(ctx, ag.ID, title); err != nil {
			return nil, err
		}
	}

	var suggestions []ReplySuggestion
	if len(targets) > 0 {
		comments, err := textgen.ReplyComments(ctx, p.generator, topic, stance, targetTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate replies: %w", err)
		}
		for i, tweet := range targets {
			// Nothing to say about this one.
			if strings.TrimSpace(comments[i]) == "" {
				continue
			}
			suggestions = append(suggestions, ReplySuggestion{
				TweetID:   tweet.ID,
				TweetText: tweet.Text,
				Comment:   comments[i],
			})
		}
	}

	scheduled := 0
	if req.Post {
		now := time.Now().UTC()
		for _, s := range suggestions {
			dueAt := now.Add(time.Duration(scheduled+1) * p.replyStagger)
			payload := ReplyJobPayload{
				AgendaID:      ag.ID,
				TweetID:       s.TweetID,
				Text:          s.Comment,
				CorrelationID: uuid.NewString(),
			}
			jobID, err := p.jobs.Enqueue(ctx, dueAt, ActionPostReply, payload)
			if err != nil {
				return nil, fmt.Errorf("failed to enqueue reply: %w", err)
			}
			scheduled++
			p.log.DebugWithFields("reply scheduled", map[string]interface{}{
				"job_id":   jobID,
				"tweet_id": s.TweetID,
				"due_at":   dueAt,
			})
		}
	}

	return &PromoteResult{
		AgendaID:    ag.ID,
		Title:       title,
		Query:       query,
		Fetched:     len(fetched.Tweets),
		Scheduled:   scheduled,
		Suggestions: suggestions,
		RateLimit:   fetched.RateLimit,
	}, nil
}

// resolveAgenda targets an existing agenda by id or finds/creates one
// for the request's owner and prompt.
func (p *Promoter) resolveAgenda(ctx context.Context, req PromoteRequest) (*agenda.Agenda, bool, error) {
	if req.AgendaID != "" {
		ag, err := p.agendas.FindByID(ctx, req.AgendaID)
		if err != nil {
			return nil, false, err
		}
		if ag == nil {
			return nil, false, fmt.Errorf("agenda %s not found", req.AgendaID)
		}
		return ag, false, nil
	}
	return p.agendas.FindOrCreate(ctx, req.CreatedBy, req.Prompt, req.Stance)
}

// HandlePostReply fires one scheduled reply through the dispatcher and
// appends the outcome to the owning agenda's history.
func (p *Promoter) HandlePostReply(ctx context.Context, job scheduler.Job) error {
	var payload ReplyJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode reply payload: %w", err)
	}

	// An empty comment is never posted.
	if strings.TrimSpace(payload.Text) == "" {
		p.log.WarnWithFields("skipping reply with empty text", map[string]interface{}{
			"agenda_id":      payload.AgendaID,
			"tweet_id":       payload.TweetID,
			"correlation_id": payload.CorrelationID,
		})
		return nil
	}

	result, err := p.dispatcher.PostReply(ctx, payload.TweetID, payload.Text)
	if err != nil {
		return err
	}

	record := &agenda.ReplyRecord{
		AgendaID: payload.AgendaID,
		TweetID:  payload.TweetID,
		ReplyID:  result.Reply.ID,
		BotID:    result.BotID,
		Text:     payload.Text,
		PostedAt: result.Reply.CreatedAt,
	}
	if err := p.agendas.AppendReply(ctx, record); err != nil {
		// The reply exists upstream; failing here loses only the local
		// record of it.
		p.log.ErrorWithFields("reply posted but history update failed", map[string]interface{}{
			"agenda_id":      payload.AgendaID,
			"reply_id":       result.Reply.ID,
			"correlation_id": payload.CorrelationID,
			"error":          err.Error(),
		})
		return err
	}

	p.log.InfoWithFields("reply posted", map[string]interface{}{
		"agenda_id":      payload.AgendaID,
		"tweet_id":       payload.TweetID,
		"reply_id":       result.Reply.ID,
		"bot_id":         result.BotID,
		"correlation_id": payload.CorrelationID,
	})
	return nil
}

// campaignTitle asks the generator for a title, falling back to a
// truncated prompt when generation fails.
func (p *Promoter) campaignTitle(ctx context.Context, prompt string) string {
	title, err := textgen.TrendingTitle(ctx, p.generator, prompt)
	if err != nil || title == "" {
		p.log.WithError(err).Warn("title generation failed, using prompt")
		return truncate(prompt, 60)
	}
	return title
}

func clampCount(n int) int {
	if n < MinFetchCount {
		return MinFetchCount
	}
	if n > MaxFetchCount {
		return MaxFetchCount
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
