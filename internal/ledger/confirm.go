package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/cryptopatrick/xforth/internal/metrics"
)

// State is a node of the confirmation state machine.
type State int

const (
	Pending State = iota
	Confirmed
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// Outcome is the terminal result of polling one receipt.
type Outcome struct {
	State   State
	Receipt solana.Signature
	Detail  string
	Polls   int
}

// Unknown is true when the transaction may or may not have landed.
func (o Outcome) Unknown() bool { return o.State == TimedOut }

// Err converts a non-confirmed outcome into its typed error.
func (o Outcome) Err() error {
	switch o.State {
	case Confirmed:
		return nil
	case Failed:
		return &OnChainFailureError{Receipt: o.Receipt, Detail: o.Detail}
	case TimedOut:
		return &ConfirmationTimeoutError{Receipt: o.Receipt, Polls: o.Polls}
	default:
		return fmt.Errorf("transaction %s still pending", o.Receipt)
	}
}

// Poller waits for a submitted transaction to reach the configured commitment.
type Poller struct {
	rpc        RPC
	commitment rpc.CommitmentType
	sleep      Sleeper
	log        zerolog.Logger
}

// NewPoller builds a poller. A nil sleeper uses the wall clock.
func NewPoller(client RPC, commitment rpc.CommitmentType, sleep Sleeper, log zerolog.Logger) *Poller {
	if sleep == nil {
		sleep = Sleep
	}
	return &Poller{rpc: client, commitment: commitment, sleep: sleep, log: log}
}

// AwaitConfirmation polls up to maxPolls times, interval apart. It returns as
// soon as a terminal status is seen and never resubmits. The error is non-nil
// only when ctx ends between polls.
func (p *Poller) AwaitConfirmation(ctx context.Context, receipt solana.Signature, maxPolls int, interval time.Duration) (Outcome, error) {
	out := Outcome{State: Pending, Receipt: receipt}
	for poll := 1; poll <= maxPolls; poll++ {
		out.Polls = poll
		metrics.ConfirmationPolls.Inc()

		status, err := p.status(ctx, receipt)
		switch {
		case err != nil:
			p.log.Warn().Err(err).Str("sig", receipt.String()).Int("poll", poll).Msg("signature status query failed")
		case status == nil:
		case status.Err != nil:
			out.State = Failed
			out.Detail = renderDetail(status.Err)
			metrics.Outcomes.WithLabelValues(out.State.String()).Inc()
			return out, nil
		case reached(status.ConfirmationStatus, p.commitment):
			out.State = Confirmed
			metrics.Outcomes.WithLabelValues(out.State.String()).Inc()
			return out, nil
		}

		if poll == maxPolls {
			break
		}
		if err := p.sleep(ctx, interval); err != nil {
			return out, fmt.Errorf("await %s: %w", receipt, err)
		}
	}
	out.State = TimedOut
	metrics.Outcomes.WithLabelValues(out.State.String()).Inc()
	return out, nil
}

func (p *Poller) status(ctx context.Context, receipt solana.Signature) (*rpc.SignatureStatusesResult, error) {
	res, err := p.rpc.GetSignatureStatuses(ctx, true, receipt)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

var commitmentRank = map[string]int{
	string(rpc.CommitmentProcessed): 1,
	string(rpc.CommitmentConfirmed): 2,
	string(rpc.CommitmentFinalized): 3,
}

// reached reports whether a status is at least as final as want. Nodes that
// omit confirmationStatus are treated as having reached it.
func reached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	g, ok := commitmentRank[string(got)]
	if !ok {
		return true
	}
	return g >= commitmentRank[string(want)]
}

func renderDetail(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
