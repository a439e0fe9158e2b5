package flow

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cryptopatrick/xforth/internal/keystore"
	"github.com/cryptopatrick/xforth/internal/ledger"
)

// Test sends a fixed transfer from payer to facilitator and reports balances
// on both sides of it.
func (r *Runner) Test(ctx context.Context, ids IdentitySource) (*TestResult, error) {
	r.report.Action("Testing x402 payment flow...")

	payer, err := ids.LoadIdentity(keystore.PayerKey)
	if err != nil {
		return nil, err
	}
	facilitator, err := ids.LoadIdentity(keystore.FacilitatorKey)
	if err != nil {
		return nil, err
	}

	r.report.Info("Checking wallet balances...")
	payerBefore, facilitatorBefore, err := r.balances(ctx, payer.PublicKey(), facilitator.PublicKey())
	if err != nil {
		return nil, err
	}
	r.report.Info(fmt.Sprintf("Payer balance: %s", fmtSOL(payerBefore)))
	r.report.Info(fmt.Sprintf("Facilitator balance: %s", fmtSOL(facilitatorBefore)))

	if payerBefore < ledger.SOLToLamports(r.cfg.Payment.MinBalanceSOL) {
		return nil, &InsufficientBalanceError{
			HaveSOL: ledger.LamportsToSOL(payerBefore),
			NeedSOL: r.cfg.Payment.MinBalanceSOL,
			Action:  "xforth fund",
		}
	}

	r.report.Action("Executing test payment...")
	intent := ledger.TransferIntent(payer, facilitator.PublicKey(), ledger.SOLToLamports(r.cfg.Payment.TransferSOL))
	tx, err := r.builder.BuildAndSign(ctx, intent)
	if err != nil {
		return nil, err
	}
	sig, err := r.confirmTx(ctx, "test", intent.Label, tx)
	if err != nil {
		return nil, fmt.Errorf("test payment: %w", err)
	}

	payerAfter, facilitatorAfter, err := r.balances(ctx, payer.PublicKey(), facilitator.PublicKey())
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("sig", sig.String()).Uint64("payer_after", payerAfter).Uint64("facilitator_after", facilitatorAfter).Msg("test payment confirmed")

	return &TestResult{
		Command:                  "test",
		Result:                   "success",
		TransactionSignature:     sig.String(),
		TransferAmountSOL:        r.cfg.Payment.TransferSOL,
		PayerBalanceBefore:       ledger.LamportsToSOL(payerBefore),
		PayerBalanceAfter:        ledger.LamportsToSOL(payerAfter),
		FacilitatorBalanceBefore: ledger.LamportsToSOL(facilitatorBefore),
		FacilitatorBalanceAfter:  ledger.LamportsToSOL(facilitatorAfter),
	}, nil
}

func (r *Runner) balances(ctx context.Context, payer, facilitator solana.PublicKey) (uint64, uint64, error) {
	p, err := ledger.Balance(ctx, r.rpc, payer, r.commitment)
	if err != nil {
		return 0, 0, fmt.Errorf("payer balance: %w", err)
	}
	f, err := ledger.Balance(ctx, r.rpc, facilitator, r.commitment)
	if err != nil {
		return 0, 0, fmt.Errorf("facilitator balance: %w", err)
	}
	return p, f, nil
}
