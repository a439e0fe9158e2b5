// Package flow sequences identities, funding, transaction building and
// confirmation into the init, fund and test commands.
package flow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptopatrick/xforth/internal/config"
	"github.com/cryptopatrick/xforth/internal/journal"
	"github.com/cryptopatrick/xforth/internal/ledger"
)

// IdentitySource resolves named signing identities.
type IdentitySource interface {
	LoadIdentity(name string) (solana.PrivateKey, error)
}

// Reporter receives human-readable progress lines.
type Reporter interface {
	Action(msg string)
	Info(msg string)
}

type nopReporter struct{}

func (nopReporter) Action(string) {}
func (nopReporter) Info(string)   {}

// Options carries the collaborators of a Runner. Zero values get sensible defaults.
type Options struct {
	Config   *config.Config
	Dir      string
	Log      zerolog.Logger
	Journal  journal.Recorder
	Reporter Reporter
	Sleep    ledger.Sleeper
}

// Runner executes one command against one RPC endpoint.
type Runner struct {
	rpc        ledger.RPC
	cfg        *config.Config
	dir        string
	log        zerolog.Logger
	journal    journal.Recorder
	report     Reporter
	runID      string
	commitment rpc.CommitmentType

	executor *ledger.Executor
	poller   *ledger.Poller
	builder  *ledger.Builder
}

// NewRunner validates the config and assembles the engine components.
func NewRunner(client ledger.RPC, opts Options) (*Runner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tokenProgram, err := ledger.TokenProgram(cfg.Mint.TokenProgram)
	if err != nil {
		return nil, err
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	rec := opts.Journal
	if rec == nil {
		rec = journal.NewMemory(4)
	}
	report := opts.Reporter
	if report == nil {
		report = nopReporter{}
	}

	commitment := ledger.ParseCommitment(cfg.Network.Commitment)
	runID := uuid.NewString()
	log := opts.Log.With().Str("run", runID).Logger()

	return &Runner{
		rpc:        client,
		cfg:        cfg,
		dir:        dir,
		log:        log,
		journal:    rec,
		report:     report,
		runID:      runID,
		commitment: commitment,
		executor: ledger.NewExecutor(client, commitment, ledger.Policy{
			MaxAttempts: cfg.Funding.MaxAttempts,
			BaseDelay:   cfg.Funding.BaseDelay(),
			Sleep:       opts.Sleep,
			Log:         log,
		}),
		poller:  ledger.NewPoller(client, commitment, opts.Sleep, log),
		builder: ledger.NewBuilder(client, commitment, tokenProgram, log),
	}, nil
}

// RunID identifies this invocation in logs and the journal.
func (r *Runner) RunID() string { return r.runID }

func (r *Runner) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.dir, name)
}

func (r *Runner) record(command, step string, out ledger.Outcome, tx *solana.Transaction) {
	entry := journal.Entry{
		RunID:   r.runID,
		Time:    time.Now().UTC(),
		Command: command,
		Step:    step,
		State:   out.State.String(),
		Detail:  out.Detail,
	}
	if out.Receipt != (solana.Signature{}) {
		entry.Receipt = out.Receipt.String()
	}
	if tx != nil {
		if encoded, err := ledger.Encode(tx); err == nil {
			entry.Tx = encoded
		}
	}
	r.journal.Record(entry)
}

// confirmTx submits a signed transaction and waits for it, journaling the outcome.
func (r *Runner) confirmTx(ctx context.Context, command, step string, tx *solana.Transaction) (solana.Signature, error) {
	out, err := r.builder.SubmitAndConfirm(ctx, tx, r.poller, r.cfg.Confirm.MaxPolls, r.cfg.Confirm.PollInterval())
	if out.Receipt == (solana.Signature{}) {
		// rejected before a receipt existed
		if err != nil {
			r.journal.Record(journal.Entry{RunID: r.runID, Time: time.Now().UTC(), Command: command, Step: step, State: "rejected", Detail: err.Error()})
		}
		return solana.Signature{}, err
	}
	r.record(command, step, out, tx)
	return out.Receipt, err
}

func short(pk solana.PublicKey) string {
	s := pk.String()
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return s
}

func fmtSOL(lamports uint64) string {
	return fmt.Sprintf("%g SOL", ledger.LamportsToSOL(lamports))
}
