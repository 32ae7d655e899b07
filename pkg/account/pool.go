package account

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"xpromo/pkg/errors"
	"xpromo/pkg/logger"
	"xpromo/pkg/quota"
)

// Pool partitions the account set into fetch-eligible and reply-eligible
// candidates at call time and hands them out round-robin.
//
// The rotation cursors are owned by the pool instance and advanced with
// atomic increments. Concurrent callers can race on the increment, which
// at worst skews rotation evenness for a cycle; eligibility is always
// re-validated at load time, never cached across calls.
type Pool struct {
	store Store
	log   logger.Logger

	fetchCursor atomic.Uint64
	replyCursor atomic.Uint64
}

// NewPool creates a pool backed by the given store.
func NewPool(store Store, log logger.Logger) *Pool {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{store: store, log: log}
}

// LoadEligible queries the full account set and filters it into
// fetch-eligible and reply-eligible slices for the given instant. It
// fails with a PoolExhaustedError if either slice is empty: that is a
// hard operational-unavailability signal, not retried here.
func (p *Pool) LoadEligible(ctx context.Context, now time.Time) (fetch, reply []Account, err error) {
	all, err := p.store.FindAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	for _, a := range all {
		if a.Eligible(quota.Fetch, now) {
			fetch = append(fetch, a)
		}
		if a.Eligible(quota.Reply, now) {
			reply = append(reply, a)
		}
	}

	p.log.DebugWithFields("account pool loaded", map[string]interface{}{
		"total":          len(all),
		"fetch_eligible": len(fetch),
		"reply_eligible": len(reply),
	})

	if len(fetch) == 0 {
		return nil, nil, &errors.PoolExhaustedError{Op: string(quota.Fetch)}
	}
	if len(reply) == 0 {
		return nil, nil, &errors.PoolExhaustedError{Op: string(quota.Reply)}
	}

	return fetch, reply, nil
}

// NextFetch picks the next fetch candidate from the eligible slice via
// the fetch rotation cursor.
func (p *Pool) NextFetch(eligible []Account) *Account {
	return next(&p.fetchCursor, eligible)
}

// NextReply picks the next reply candidate from the eligible slice via
// the reply rotation cursor.
func (p *Pool) NextReply(eligible []Account) *Account {
	return next(&p.replyCursor, eligible)
}

func next(cursor *atomic.Uint64, eligible []Account) *Account {
	if len(eligible) == 0 {
		return nil
	}
	idx := cursor.Add(1) - 1
	return &eligible[idx%uint64(len(eligible))]
}
