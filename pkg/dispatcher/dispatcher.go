// Package dispatcher executes rate-limited API calls over a rotating pool
// of credentialed accounts.
//
// One call to FetchTweets or PostReply tries accounts in round-robin order
// until a call succeeds or the pool is exhausted. Per-account failures are
// absorbed into rotation decisions: quota caps lock the account until its
// window reopens, transient upstream errors skip to the next candidate,
// and anything else aborts the whole operation. Lock and usage updates are
// persisted before the call returns so concurrent dispatches observe
// current state.
package dispatcher

import (
	"context"
	"net/http"
	"sync"
	"time"

	"xpromo/pkg/account"
	"xpromo/pkg/config"
	"xpromo/pkg/errors"
	"xpromo/pkg/logger"
	"xpromo/pkg/quota"
	"xpromo/pkg/twitter"
)

// API is the slice of the upstream client the dispatcher drives.
type API interface {
	SearchRecent(ctx context.Context, query string, maxResults int, bearerToken string) (*twitter.FetchResult, error)
	PostReply(ctx context.Context, tweetID, text string, creds twitter.Credentials) (*twitter.Reply, error)
}

// PostResult is the outcome of a successful reply, including which
// account performed the write.
type PostResult struct {
	Reply *twitter.Reply
	BotID string
}

// Dispatcher rotates API calls across the account pool.
type Dispatcher struct {
	pool  *account.Pool
	store account.Store
	api   API
	log   logger.Logger

	// writeLockDuration is how long an account sits out after a
	// short-window (24-hour) cap with no explicit reset timestamp.
	writeLockDuration time.Duration

	mu           sync.Mutex
	lastReplyBot string
}

// New creates a dispatcher over the given pool and upstream client.
func New(pool *account.Pool, store account.Store, api API, cfg *config.PoolConfig, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Dispatcher{
		pool:              pool,
		store:             store,
		api:               api,
		log:               log,
		writeLockDuration: cfg.WriteLockDuration,
	}
}

// LastReplyBot returns the account that performed the most recent
// successful reply. Tracked for auditing; not enforced as a constraint.
func (d *Dispatcher) LastReplyBot() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReplyBot
}

// FetchTweets searches recent tweets, rotating through fetch-eligible
// accounts until one succeeds.
func (d *Dispatcher) FetchTweets(ctx context.Context, count int, query string) (*twitter.FetchResult, error) {
	now := time.Now().UTC()
	eligible, _, err := d.pool.LoadEligible(ctx, now)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < len(eligible); attempt++ {
		bot := d.pool.NextFetch(eligible)

		result, err := d.api.SearchRecent(ctx, query, count, bot.BearerToken)
		if err == nil {
			if recErr := d.store.RecordUse(ctx, bot.BotID, quota.Fetch, time.Now().UTC()); recErr != nil {
				d.log.WithError(recErr).Warn("failed to record fetch usage")
			}
			d.logAttempt(bot.BotID, quota.Fetch, true, nil)
			return result, nil
		}

		decision, classified := d.classify(ctx, bot, quota.Fetch, err)
		d.logAttempt(bot.BotID, quota.Fetch, false, classified)
		if decision == abort {
			return nil, classified
		}
		lastErr = classified
	}

	return nil, &errors.AllAccountsFailedError{
		Op:       string(quota.Fetch),
		Attempts: len(eligible),
		Last:     lastErr,
	}
}

// PostReply posts a reply to tweetID, rotating through reply-eligible
// accounts until one succeeds.
func (d *Dispatcher) PostReply(ctx context.Context, tweetID, text string) (*PostResult, error) {
	now := time.Now().UTC()
	_, eligible, err := d.pool.LoadEligible(ctx, now)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < len(eligible); attempt++ {
		bot := d.pool.NextReply(eligible)

		reply, err := d.api.PostReply(ctx, tweetID, text, twitter.Credentials{
			APIKey:            bot.APIKey,
			APISecret:         bot.APISecret,
			AccessToken:       bot.AccessToken,
			AccessTokenSecret: bot.AccessTokenSecret,
		})
		if err == nil {
			if recErr := d.store.RecordUse(ctx, bot.BotID, quota.Reply, time.Now().UTC()); recErr != nil {
				d.log.WithError(recErr).Warn("failed to record reply usage")
			}
			d.mu.Lock()
			d.lastReplyBot = bot.BotID
			d.mu.Unlock()
			d.logAttempt(bot.BotID, quota.Reply, true, nil)
			return &PostResult{Reply: reply, BotID: bot.BotID}, nil
		}

		decision, classified := d.classify(ctx, bot, quota.Reply, err)
		d.logAttempt(bot.BotID, quota.Reply, false, classified)
		if decision == abort {
			return nil, classified
		}
		lastErr = classified
	}

	return nil, &errors.AllAccountsFailedError{
		Op:       string(quota.Reply),
		Attempts: len(eligible),
		Last:     lastErr,
	}
}

type decision int

const (
	rotate decision = iota
	abort
)

// classify turns a per-call failure into a rotation decision, persisting
// any lock it implies. Rules, in precedence order:
//
//   - usage cap with a Monthly period: lock until the account's seeded
//     monthly reset, rotate
//   - usage cap with a short (24-hour) period, reply only: lock for the
//     configured write-lock duration from now, rotate
//   - any response carrying an x-rate-limit-reset header, whatever the
//     status: lock until that timestamp, rotate
//   - 401, 403, 503 (and bare 429 on replies): transient, rotate
//     without locking
//   - anything else: abort the operation
func (d *Dispatcher) classify(ctx context.Context, bot *account.Account, op quota.OpClass, err error) (decision, error) {
	apiErr, ok := err.(*twitter.APIError)
	if !ok {
		return abort, &errors.FatalUpstreamError{Op: string(op), Err: err}
	}

	if apiErr.IsUsageCap() {
		switch {
		case apiErr.Period == twitter.PeriodMonthly && bot.MonthlyReset != nil:
			until := bot.MonthlyReset.UTC()
			d.lock(ctx, bot.BotID, op, until)
			return rotate, &errors.AccountCapExceededError{BotID: bot.BotID, Op: string(op), Period: errors.CapMonthly, Until: until}
		case apiErr.Period == twitter.PeriodDaily && op == quota.Reply:
			until := time.Now().UTC().Add(d.writeLockDuration)
			d.lock(ctx, bot.BotID, op, until)
			return rotate, &errors.AccountCapExceededError{BotID: bot.BotID, Op: string(op), Period: errors.CapWindowed, Until: until}
		}
	}

	// The reset header wins over the status code: a window-exhausted
	// account can surface it on 503s and auth errors too.
	if apiErr.HasRateLimitReset() {
		until := apiErr.RateLimitReset.UTC()
		d.lock(ctx, bot.BotID, op, until)
		return rotate, &errors.AccountCapExceededError{BotID: bot.BotID, Op: string(op), Period: errors.CapWindowed, Until: until}
	}

	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
		return rotate, &errors.TransientUpstreamError{BotID: bot.BotID, Err: apiErr}
	case http.StatusTooManyRequests:
		if op == quota.Reply {
			return rotate, &errors.TransientUpstreamError{BotID: bot.BotID, Err: apiErr}
		}
	}

	return abort, &errors.FatalUpstreamError{Op: string(op), Err: apiErr}
}

func (d *Dispatcher) lock(ctx context.Context, botID string, op quota.OpClass, until time.Time) {
	if err := d.store.SetLock(ctx, botID, op, until); err != nil {
		d.log.ErrorWithFields("failed to persist account lock", map[string]interface{}{
			"bot_id": botID,
			"op":     string(op),
			"error":  err.Error(),
		})
		return
	}
	d.log.WarnWithFields("account locked until quota reset", map[string]interface{}{
		"bot_id": botID,
		"op":     string(op),
		"until":  until,
	})
}

func (d *Dispatcher) logAttempt(botID string, op quota.OpClass, success bool, err error) {
	fields := map[string]interface{}{
		"bot_id":  botID,
		"op":      string(op),
		"success": success,
	}
	if err != nil {
		fields["error"] = err.Error()
		d.log.WarnWithFields("dispatch attempt failed", fields)
		return
	}
	d.log.InfoWithFields("dispatch attempt succeeded", fields)
}
