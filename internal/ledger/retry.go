package ledger

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/cryptopatrick/xforth/internal/metrics"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy bounds a retry loop. Backoff is BaseDelay * 2^(attempt-1) with no jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       Sleeper
	Log         zerolog.Logger
}

// MaxBackoff caps a single wait so large attempt counts cannot overflow.
const MaxBackoff = time.Hour

// Backoff is the wait after the given 1-indexed attempt, saturating at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return d
}

// Retry runs op until it succeeds, fails with a non rate-limit error, or the
// attempts run out. Cancellation is only observed while waiting between attempts.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := op(ctx, attempt)
		if err == nil {
			metrics.RequestAttempts.WithLabelValues("ok").Inc()
			return out, nil
		}
		if !IsRateLimited(err) {
			metrics.RequestAttempts.WithLabelValues("terminal").Inc()
			return zero, &TerminalRequestError{Attempt: attempt, Err: err}
		}
		metrics.RequestAttempts.WithLabelValues("rate_limited").Inc()
		last = err
		if attempt == maxAttempts {
			break
		}
		delay := p.Backoff(attempt)
		p.Log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("server responded with 429, retrying")
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt, err)
		}
	}
	return zero, &ExhaustedError{Attempts: maxAttempts, Last: last}
}

// FundingRequest asks the network to airdrop lamports to a recipient.
type FundingRequest struct {
	Label     string
	Recipient solana.PublicKey
	Lamports  uint64
}

// Executor issues funding requests under a retry Policy.
type Executor struct {
	rpc        RPC
	commitment rpc.CommitmentType
	policy     Policy
}

// NewExecutor wires an RPC client to a retry policy.
func NewExecutor(client RPC, commitment rpc.CommitmentType, policy Policy) *Executor {
	return &Executor{rpc: client, commitment: commitment, policy: policy}
}

// Execute requests the airdrop and returns its receipt. It does not wait for confirmation.
func (e *Executor) Execute(ctx context.Context, req FundingRequest) (solana.Signature, error) {
	return Retry(ctx, e.policy, func(ctx context.Context, attempt int) (solana.Signature, error) {
		e.policy.Log.Debug().Str("label", req.Label).Int("attempt", attempt).Uint64("lamports", req.Lamports).Msg("request airdrop")
		return e.rpc.RequestAirdrop(ctx, req.Recipient, req.Lamports, e.commitment)
	})
}
