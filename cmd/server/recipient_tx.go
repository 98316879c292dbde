package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/platform/sentinel"
	txcontext "aidreg/pkg/platform/tx"
)

const (
	defaultRecipientTxTimeout = 5 * time.Second
	lockRetryInterval         = 25 * time.Millisecond
)

type recipientPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newRecipientPostgresTx(db *sql.DB) *recipientPostgresTx {
	return &recipientPostgresTx{db: db}
}

func (t *recipientPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel := withTxTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// releaseLockScript deletes the lock only while it still holds our token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// recipientRedisLockTx serializes mutations across processes sharing one Redis
// with a single lease lock. The lease must outlive the slowest mutation.
type recipientRedisLockTx struct {
	client  redis.UniversalClient
	key     string
	lease   time.Duration
	timeout time.Duration
}

func newRecipientRedisLockTx(client redis.UniversalClient, prefix string, lease time.Duration) *recipientRedisLockTx {
	return &recipientRedisLockTx{client: client, key: prefix + ":lock:mutations", lease: lease}
}

func (t *recipientRedisLockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := withTxTimeout(ctx, t.timeout)
	defer cancel()

	token := uuid.NewString()
	if err := t.acquire(ctx, token); err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller never strands the lease.
		releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer releaseCancel()
		_ = releaseLockScript.Run(releaseCtx, t.client, []string{t.key}, token).Err() //nolint:errcheck // lease expiry covers a failed release
	}()

	return fn(ctx)
}

func (t *recipientRedisLockTx) acquire(ctx context.Context, token string) error {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		err := t.client.SetArgs(ctx, t.key, token, redis.SetArgs{Mode: "NX", TTL: t.lease}).Err()
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, redis.Nil):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire mutation lock")
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, ctx.Err()), dErrors.CodeTimeout, "mutation lock not acquired")
		case <-ticker.C:
		}
	}
}

func withTxTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultRecipientTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
