package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopatrick/xforth/internal/config"
	"github.com/cryptopatrick/xforth/internal/flow"
	"github.com/cryptopatrick/xforth/internal/journal"
	"github.com/cryptopatrick/xforth/internal/keystore"
	"github.com/cryptopatrick/xforth/internal/ledger"
	"github.com/cryptopatrick/xforth/internal/ledger/ledgertest"
)

func TestInitFundTestFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chain := ledgertest.NewChain()
	chain.AirdropErrs = []error{ledgertest.RateLimit(), ledgertest.RateLimit()}
	clock := &ledgertest.Clock{}
	root := t.TempDir()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	newRunner := func(dir string) *flow.Runner {
		runner, err := flow.NewRunner(chain, flow.Options{
			Config:  config.Default(),
			Dir:     dir,
			Log:     logger,
			Journal: journal.NewMemory(4),
			Sleep:   clock.Sleep,
		})
		if err != nil {
			t.Fatalf("NewRunner returned error: %v", err)
		}
		return runner
	}

	initRes, err := newRunner(root).Init("agent", config.LocalURL)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	// every command reloads identities from disk
	project := filepath.Join(root, "agent")
	open := func() *keystore.Store {
		store, err := keystore.Open(filepath.Join(project, flow.EnvFile))
		if err != nil {
			t.Fatalf("Open returned error: %v", err)
		}
		return store
	}

	fundRes, err := newRunner(project).Fund(ctx, open())
	if err != nil {
		t.Fatalf("Fund returned error: %v", err)
	}
	if got := clock.Total(); got != 1500*time.Millisecond {
		t.Fatalf("expected 500ms+1s of backoff, got %s", got)
	}
	mint, err := keystore.LoadMint(filepath.Join(project, ".env.mint"))
	if err != nil {
		t.Fatalf("LoadMint returned error: %v", err)
	}
	if mint.Mint.String() != fundRes.MintPubkey {
		t.Fatalf("mint side file %s does not match result %s", mint.Mint, fundRes.MintPubkey)
	}

	testRes, err := newRunner(project).Test(ctx, open())
	if err != nil {
		t.Fatalf("Test returned error: %v", err)
	}

	transfer := ledger.SOLToLamports(0.1)
	payerBefore := ledger.SOLToLamports(testRes.PayerBalanceBefore)
	payerAfter := ledger.SOLToLamports(testRes.PayerBalanceAfter)
	facilitatorBefore := ledger.SOLToLamports(testRes.FacilitatorBalanceBefore)
	facilitatorAfter := ledger.SOLToLamports(testRes.FacilitatorBalanceAfter)
	if facilitatorAfter-facilitatorBefore != transfer {
		t.Fatalf("facilitator should gain exactly %d lamports, gained %d", transfer, facilitatorAfter-facilitatorBefore)
	}
	if payerBefore-payerAfter < transfer {
		t.Fatalf("payer should lose at least %d lamports, lost %d", transfer, payerBefore-payerAfter)
	}
	if testRes.FacilitatorBalanceBefore != 0.5 {
		t.Fatalf("expected facilitator to start at 0.5 SOL, got %g", testRes.FacilitatorBalanceBefore)
	}
	if initRes.FacilitatorPubkey == initRes.PayerPubkey {
		t.Fatalf("expected distinct identities")
	}
	if !strings.Contains(buf.String(), "test payment confirmed") {
		t.Fatalf("expected log output to include test payment confirmed, got %s", buf.String())
	}
}
