package flow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopatrick/xforth/internal/config"
	"github.com/cryptopatrick/xforth/internal/flow"
	"github.com/cryptopatrick/xforth/internal/journal"
	"github.com/cryptopatrick/xforth/internal/keystore"
	"github.com/cryptopatrick/xforth/internal/ledger"
	"github.com/cryptopatrick/xforth/internal/ledger/ledgertest"
)

type identities map[string]solana.PrivateKey

func (m identities) LoadIdentity(name string) (solana.PrivateKey, error) {
	key, ok := m[name]
	if !ok {
		return nil, &keystore.NotFoundError{Name: name, Path: "memory"}
	}
	return key, nil
}

type lines struct{ actions, infos []string }

func (l *lines) Action(msg string) { l.actions = append(l.actions, msg) }
func (l *lines) Info(msg string)   { l.infos = append(l.infos, msg) }

type fixture struct {
	chain   *ledgertest.Chain
	clock   *ledgertest.Clock
	journal *journal.Memory
	report  *lines
	runner  *flow.Runner
	dir     string
	ids     identities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain:   ledgertest.NewChain(),
		clock:   &ledgertest.Clock{},
		journal: journal.NewMemory(4),
		report:  &lines{},
		dir:     t.TempDir(),
		ids: identities{
			keystore.PayerKey:       solana.NewWallet().PrivateKey,
			keystore.FacilitatorKey: solana.NewWallet().PrivateKey,
		},
	}
	runner, err := flow.NewRunner(f.chain, flow.Options{
		Config:   config.Default(),
		Dir:      f.dir,
		Log:      zerolog.Nop(),
		Journal:  f.journal,
		Reporter: f.report,
		Sleep:    f.clock.Sleep,
	})
	require.NoError(t, err)
	f.runner = runner
	return f
}

func (f *fixture) payer() solana.PublicKey       { return f.ids[keystore.PayerKey].PublicKey() }
func (f *fixture) facilitator() solana.PublicKey { return f.ids[keystore.FacilitatorKey].PublicKey() }

func TestFundHappyPath(t *testing.T) {
	f := newFixture(t)
	f.chain.AirdropErrs = []error{ledgertest.RateLimit()}
	f.chain.PendingPolls = 2

	res, err := f.runner.Fund(context.Background(), f.ids)
	require.NoError(t, err)
	assert.Equal(t, "fund", res.Command)
	assert.Equal(t, "success", res.Result)
	assert.NotEqual(t, res.PayerAirdropTx, res.FacilitatorAirdropTx)
	assert.Equal(t, uint8(6), res.MintDecimals)

	mint, err := keystore.LoadMint(filepath.Join(f.dir, ".env.mint"))
	require.NoError(t, err)
	assert.Equal(t, res.MintPubkey, mint.Mint.String())
	owner, ok := f.chain.OwnerOf(mint.Mint)
	require.True(t, ok)
	assert.True(t, owner.Equals(ledger.Token2022ProgramID))

	assert.Equal(t, ledger.SOLToLamports(0.5), f.chain.BalanceOf(f.facilitator()))
	assert.Equal(t, 3, f.chain.Calls("requestAirdrop"))

	entries := f.journal.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "payer-airdrop", entries[0].Step)
	assert.Equal(t, "facilitator-airdrop", entries[1].Step)
	assert.Equal(t, "create-mint", entries[2].Step)
	assert.NotEmpty(t, entries[2].Tx)
	for _, e := range entries {
		assert.Equal(t, "confirmed", e.State)
		assert.Equal(t, f.runner.RunID(), e.RunID)
	}
	assert.Contains(t, f.report.actions[0], "Airdropping 0.5 SOL to Payer")
}

func TestFundStopsAfterTerminalPayerFailure(t *testing.T) {
	f := newFixture(t)
	f.chain.AirdropErrs = []error{errors.New("airdrop request failed: faucet has run dry")}

	_, err := f.runner.Fund(context.Background(), f.ids)
	var terminal *ledger.TerminalRequestError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, 1, f.chain.Calls("requestAirdrop"), "facilitator is never funded")
	assert.Zero(t, f.chain.Calls("sendTransaction"))
	_, statErr := os.Stat(filepath.Join(f.dir, ".env.mint"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFundConfirmationTimeoutIsDistinct(t *testing.T) {
	f := newFixture(t)
	f.chain.Withhold = true

	_, err := f.runner.Fund(context.Background(), f.ids)
	var timeout *ledger.ConfirmationTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 30, timeout.Polls)
	assert.Equal(t, 30, f.chain.Calls("getSignatureStatuses"))
	assert.Equal(t, 1, f.chain.Calls("requestAirdrop"), "confirmation is not retried across attempts")

	entries := f.journal.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "timed_out", entries[0].State)
}

func TestFundKeepsAirdropsWhenMintFails(t *testing.T) {
	f := newFixture(t)
	f.chain.SendErr = errors.New("Transaction simulation failed: Error processing Instruction 1")

	_, err := f.runner.Fund(context.Background(), f.ids)
	var rejected *ledger.SubmissionError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ledger.SOLToLamports(0.5), f.chain.BalanceOf(f.payer()))
	assert.Equal(t, ledger.SOLToLamports(0.5), f.chain.BalanceOf(f.facilitator()))

	entries := f.journal.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "rejected", entries[2].State)
}

func TestFundMissingIdentity(t *testing.T) {
	f := newFixture(t)
	delete(f.ids, keystore.FacilitatorKey)

	_, err := f.runner.Fund(context.Background(), f.ids)
	var nf *keystore.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, f.chain.TotalCalls())
}

func TestTestInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.chain.SetBalance(f.payer(), ledger.SOLToLamports(0.05))

	_, err := f.runner.Test(context.Background(), f.ids)
	var low *flow.InsufficientBalanceError
	require.ErrorAs(t, err, &low)
	assert.Equal(t, 0.05, low.HaveSOL)
	assert.Equal(t, 0.1, low.NeedSOL)
	assert.Contains(t, low.Error(), "xforth fund")
	assert.Zero(t, f.chain.Calls("getLatestBlockhash"), "no transfer is built")
	assert.Zero(t, f.chain.Calls("sendTransaction"))
}

func TestTestTransfersAndReportsBalances(t *testing.T) {
	f := newFixture(t)
	f.chain.SetBalance(f.payer(), ledger.SOLToLamports(0.5))
	f.chain.SetBalance(f.facilitator(), ledger.SOLToLamports(0.5))

	res, err := f.runner.Test(context.Background(), f.ids)
	require.NoError(t, err)
	assert.Equal(t, "test", res.Command)
	assert.Equal(t, 0.1, res.TransferAmountSOL)
	assert.Equal(t, 0.5, res.PayerBalanceBefore)
	assert.Equal(t, 0.5, res.FacilitatorBalanceBefore)
	assert.InDelta(t, 0.6, res.FacilitatorBalanceAfter, 1e-12)
	assert.LessOrEqual(t, res.PayerBalanceAfter, res.PayerBalanceBefore-0.1)

	assert.Equal(t, ledger.SOLToLamports(0.6), f.chain.BalanceOf(f.facilitator()))
	assert.Equal(t, ledger.SOLToLamports(0.4)-ledgertest.DefaultFee, f.chain.BalanceOf(f.payer()))
	require.Len(t, f.chain.Sent(), 1)
	assert.Equal(t, res.TransactionSignature, f.chain.Sent()[0].Signatures[0].String())
}

func TestInitWritesStore(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner.Init("my-x402-agent", config.LocalURL)
	require.NoError(t, err)
	assert.Equal(t, "init", res.Command)
	assert.Equal(t, res.FacilitatorPubkey, res.FacilitatorProgramID)

	store, err := keystore.Open(filepath.Join(f.dir, "my-x402-agent", flow.EnvFile))
	require.NoError(t, err)
	payer, err := store.LoadIdentity(keystore.PayerKey)
	require.NoError(t, err)
	assert.Equal(t, res.PayerPubkey, payer.PublicKey().String())
	url, _ := store.Get(keystore.RPCURLKey)
	assert.Equal(t, config.LocalURL, url)

	_, err = f.runner.Init("my-x402-agent", config.LocalURL)
	assert.ErrorContains(t, err, "refusing to overwrite")
}
