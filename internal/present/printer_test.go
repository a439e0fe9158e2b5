package present

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopatrick/xforth/internal/flow"
	"github.com/cryptopatrick/xforth/internal/ledger"
)

func TestHumanModeNoColor(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(&out, &errOut, Options{NoColor: true})

	p.Action("Airdropping 0.5 SOL to Payer...")
	p.Info("Funding test wallets...")
	require.NoError(t, p.Result(&flow.FundResult{MintPubkey: "Mint111"}))

	text := out.String()
	assert.Contains(t, text, "Action: Airdropping 0.5 SOL to Payer...")
	assert.Contains(t, text, `Log: "Funding test wallets..."`)
	assert.Contains(t, text, "Wallets funded. Mint: Mint111")
	assert.NotContains(t, text, "\x1b[")
}

func TestJSONModeWritesOnlyResult(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(&out, &errOut, Options{JSON: true})

	p.Action("ignored")
	p.Info("ignored")
	require.NoError(t, p.Result(&flow.TestResult{Command: "test", Result: "success", TransferAmountSOL: 0.1}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "test", decoded["command"])
	assert.Equal(t, 0.1, decoded["transfer_amount_sol"])
	assert.NotContains(t, out.String(), "ignored")

	// field order follows the struct
	text := out.String()
	assert.Less(t, strings.Index(text, `"payer_balance_before"`), strings.Index(text, `"facilitator_balance_before"`))
}

func TestErrorFlagsUnknownOutcome(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(&out, &errOut, Options{JSON: true})

	timeout := fmt.Errorf("fund payer: %w", &ledger.ConfirmationTimeoutError{Receipt: solana.Signature{1}, Polls: 30})
	p.Error("fund", timeout)

	var decoded ErrorResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "error", decoded.Result)
	assert.True(t, decoded.OutcomeUnknown)

	assert.False(t, OutcomeUnknown(&ledger.OnChainFailureError{Detail: "InsufficientFunds"}))
	assert.False(t, OutcomeUnknown(errors.New("boom")))
}

func TestErrorHumanMode(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(&out, &errOut, Options{NoColor: true})

	p.Error("test", &flow.InsufficientBalanceError{HaveSOL: 0.05, NeedSOL: 0.1, Action: "xforth fund"})
	assert.Contains(t, errOut.String(), "Error: insufficient payer balance")
	assert.Empty(t, out.String())
}
