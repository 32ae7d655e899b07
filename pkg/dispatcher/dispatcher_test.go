package dispatcher

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpromo/pkg/account"
	"xpromo/pkg/config"
	"xpromo/pkg/errors"
	"xpromo/pkg/logger"
	"xpromo/pkg/quota"
	"xpromo/pkg/twitter"
)

// fakeStore is an in-memory account.Store tracking locks and usage.
type fakeStore struct {
	mu       sync.Mutex
	accounts []*account.Account
}

func (s *fakeStore) FindAll(ctx context.Context) ([]account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *fakeStore) FindByID(ctx context.Context, botID string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.BotID == botID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Upsert(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts = append(s.accounts, &cp)
	return nil
}

func (s *fakeStore) RecordUse(ctx context.Context, botID string, op quota.OpClass, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.BotID == botID {
			if op == quota.Fetch {
				a.FetchCount++
			} else {
				a.ReplyCount++
			}
			a.LastUsedAt = &at
		}
	}
	return nil
}

func (s *fakeStore) SetLock(ctx context.Context, botID string, op quota.OpClass, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.BotID == botID {
			if op == quota.Fetch {
				a.NextFetchReset = &until
			} else {
				a.NextReplyReset = &until
			}
		}
	}
	return nil
}

func (s *fakeStore) get(botID string) *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.BotID == botID {
			return a
		}
	}
	return nil
}

// fakeAPI routes calls to per-account responders keyed by credential.
type fakeAPI struct {
	mu          sync.Mutex
	searchCalls int
	postCalls   int
	searchFn    map[string]func() (*twitter.FetchResult, error)
	postFn      map[string]func() (*twitter.Reply, error)
}

func (f *fakeAPI) SearchRecent(ctx context.Context, query string, maxResults int, bearerToken string) (*twitter.FetchResult, error) {
	f.mu.Lock()
	f.searchCalls++
	fn := f.searchFn[bearerToken]
	f.mu.Unlock()
	if fn == nil {
		return &twitter.FetchResult{}, nil
	}
	return fn()
}

func (f *fakeAPI) PostReply(ctx context.Context, tweetID, text string, creds twitter.Credentials) (*twitter.Reply, error) {
	f.mu.Lock()
	f.postCalls++
	fn := f.postFn[creds.APIKey]
	f.mu.Unlock()
	if fn == nil {
		return &twitter.Reply{ID: "default"}, nil
	}
	return fn()
}

func newTestDispatcher(store *fakeStore, api *fakeAPI) *Dispatcher {
	pool := account.NewPool(store, logger.NewNopLogger())
	return New(pool, store, api, &config.PoolConfig{WriteLockDuration: 24 * time.Hour}, logger.NewNopLogger())
}

func bot(id string, role account.Role, monthlyReset *time.Time) *account.Account {
	return &account.Account{
		BotID:        id,
		Role:         role,
		BearerToken:  "bearer-" + id,
		APIKey:       "key-" + id,
		MonthlyReset: monthlyReset,
	}
}

func capErr(period string) error {
	return &twitter.APIError{Status: http.StatusTooManyRequests, Title: "UsageCapExceeded", Period: period}
}

func TestFetchRotatesPastCappedAccounts(t *testing.T) {
	monthlyReset := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	rateReset := time.Now().Add(60 * time.Second).UTC().Truncate(time.Second)

	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, &monthlyReset),
		bot("b2", account.RoleAll, nil),
		bot("b3", account.RoleAll, nil),
	}}
	want := &twitter.FetchResult{Tweets: []twitter.Tweet{{ID: "t1"}}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) { return nil, capErr(twitter.PeriodMonthly) },
		"bearer-b2": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusTooManyRequests, RateLimitReset: rateReset}
		},
		"bearer-b3": func() (*twitter.FetchResult, error) { return want, nil },
	}}

	d := newTestDispatcher(store, api)
	result, err := d.FetchTweets(context.Background(), 10, "golang")
	require.NoError(t, err)
	assert.Equal(t, want, result)
	assert.Equal(t, 3, api.searchCalls)

	b1 := store.get("b1")
	require.NotNil(t, b1.NextFetchReset)
	assert.Equal(t, monthlyReset, *b1.NextFetchReset)

	b2 := store.get("b2")
	require.NotNil(t, b2.NextFetchReset)
	assert.Equal(t, rateReset, *b2.NextFetchReset)

	b3 := store.get("b3")
	assert.Nil(t, b3.NextFetchReset)
	assert.EqualValues(t, 1, b3.FetchCount)
	assert.NotNil(t, b3.LastUsedAt)
}

func TestFetchFatalErrorAbortsImmediately(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
		bot("b3", account.RoleAll, nil),
	}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusBadRequest, Title: "Invalid Request"}
		},
	}}

	d := newTestDispatcher(store, api)
	_, err := d.FetchTweets(context.Background(), 10, "golang")
	require.Error(t, err)
	assert.True(t, errors.IsFatalUpstream(err))
	assert.Equal(t, 1, api.searchCalls, "remaining accounts must not be tried after a fatal error")
}

func TestFetchAllAccountsCapped(t *testing.T) {
	monthlyReset := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, &monthlyReset),
		bot("b2", account.RoleAll, &monthlyReset),
		bot("b3", account.RoleAll, &monthlyReset),
	}}
	fail := func() (*twitter.FetchResult, error) { return nil, capErr(twitter.PeriodMonthly) }
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": fail, "bearer-b2": fail, "bearer-b3": fail,
	}}

	d := newTestDispatcher(store, api)
	_, err := d.FetchTweets(context.Background(), 10, "golang")
	require.Error(t, err)

	var all *errors.AllAccountsFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, 3, all.Attempts)
	assert.True(t, errors.IsAccountCapExceeded(all.Last))

	for _, id := range []string{"b1", "b2", "b3"} {
		a := store.get(id)
		require.NotNil(t, a.NextFetchReset, "account %s should be locked", id)
		assert.Equal(t, monthlyReset, *a.NextFetchReset)
	}
}

func TestFetchBare429IsFatal(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
	}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusTooManyRequests}
		},
	}}

	d := newTestDispatcher(store, api)
	_, err := d.FetchTweets(context.Background(), 10, "golang")
	require.Error(t, err)
	assert.True(t, errors.IsFatalUpstream(err))
	assert.Equal(t, 1, api.searchCalls)
}

func TestFetchResetHeaderLocksRegardlessOfStatus(t *testing.T) {
	rateReset := time.Now().Add(60 * time.Second).UTC().Truncate(time.Second)
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
	}}
	want := &twitter.FetchResult{Tweets: []twitter.Tweet{{ID: "t5"}}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusServiceUnavailable, RateLimitReset: rateReset}
		},
		"bearer-b2": func() (*twitter.FetchResult, error) { return want, nil },
	}}

	d := newTestDispatcher(store, api)
	result, err := d.FetchTweets(context.Background(), 10, "golang")
	require.NoError(t, err)
	assert.Equal(t, want, result)
	assert.Equal(t, 2, api.searchCalls)

	b1 := store.get("b1")
	require.NotNil(t, b1.NextFetchReset, "a 503 with x-rate-limit-reset must lock until the header timestamp")
	assert.Equal(t, rateReset, *b1.NextFetchReset)
}

func TestFetchTransientErrorsRotateWithoutLocking(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
		bot("b3", account.RoleAll, nil),
	}}
	want := &twitter.FetchResult{Tweets: []twitter.Tweet{{ID: "t9"}}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusUnauthorized}
		},
		"bearer-b2": func() (*twitter.FetchResult, error) {
			return nil, &twitter.APIError{Status: http.StatusServiceUnavailable}
		},
		"bearer-b3": func() (*twitter.FetchResult, error) { return want, nil },
	}}

	d := newTestDispatcher(store, api)
	result, err := d.FetchTweets(context.Background(), 10, "golang")
	require.NoError(t, err)
	assert.Equal(t, want, result)

	assert.Nil(t, store.get("b1").NextFetchReset)
	assert.Nil(t, store.get("b2").NextFetchReset)
}

func TestPostLockedWriteAccountIsPoolExhausted(t *testing.T) {
	future := time.Now().Add(time.Hour).UTC()
	store := &fakeStore{accounts: []*account.Account{
		bot("reader", account.RoleFetch, nil),
		{BotID: "writer", Role: account.RoleReply, APIKey: "key-writer", NextReplyReset: &future},
	}}
	api := &fakeAPI{}

	d := newTestDispatcher(store, api)
	_, err := d.PostReply(context.Background(), "t1", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsPoolExhausted(err))
	assert.Equal(t, 0, api.postCalls, "no external call may be attempted when the pool is exhausted")
}

func TestPostShortWindowCapLocksForFixedDuration(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
	}}
	api := &fakeAPI{postFn: map[string]func() (*twitter.Reply, error){
		"key-b1": func() (*twitter.Reply, error) { return nil, capErr(twitter.PeriodDaily) },
		"key-b2": func() (*twitter.Reply, error) { return &twitter.Reply{ID: "r1", Text: "hi"}, nil },
	}}

	before := time.Now().UTC()
	d := newTestDispatcher(store, api)
	result, err := d.PostReply(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "r1", result.Reply.ID)
	assert.Equal(t, "b2", result.BotID)
	assert.Equal(t, "b2", d.LastReplyBot())

	b1 := store.get("b1")
	require.NotNil(t, b1.NextReplyReset)
	assert.WithinDuration(t, before.Add(24*time.Hour), *b1.NextReplyReset, 5*time.Second)
	assert.Nil(t, b1.NextFetchReset, "a reply cap must not lock the fetch class")

	b2 := store.get("b2")
	assert.EqualValues(t, 1, b2.ReplyCount)
}

func TestPostBare429RotatesWithoutLocking(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{
		bot("b1", account.RoleAll, nil),
		bot("b2", account.RoleAll, nil),
	}}
	api := &fakeAPI{postFn: map[string]func() (*twitter.Reply, error){
		"key-b1": func() (*twitter.Reply, error) {
			return nil, &twitter.APIError{Status: http.StatusTooManyRequests}
		},
		"key-b2": func() (*twitter.Reply, error) { return &twitter.Reply{ID: "r2"}, nil },
	}}

	d := newTestDispatcher(store, api)
	result, err := d.PostReply(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "b2", result.BotID)
	assert.Nil(t, store.get("b1").NextReplyReset)
}

func TestFetchNonAPIErrorIsFatal(t *testing.T) {
	store := &fakeStore{accounts: []*account.Account{bot("b1", account.RoleAll, nil)}}
	api := &fakeAPI{searchFn: map[string]func() (*twitter.FetchResult, error){
		"bearer-b1": func() (*twitter.FetchResult, error) {
			return nil, context.DeadlineExceeded
		},
	}}

	d := newTestDispatcher(store, api)
	_, err := d.FetchTweets(context.Background(), 10, "golang")
	require.Error(t, err)
	assert.True(t, errors.IsFatalUpstream(err))
}
