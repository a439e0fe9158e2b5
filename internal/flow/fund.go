package flow

import (
	"context"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cryptopatrick/xforth/internal/keystore"
	"github.com/cryptopatrick/xforth/internal/ledger"
)

// Fund airdrops to the payer, then the facilitator, then creates the test
// token mint and records it in the side file. Any failure aborts the
// remaining steps; completed airdrops are not undone.
func (r *Runner) Fund(ctx context.Context, ids IdentitySource) (*FundResult, error) {
	r.report.Info("Funding test wallets...")

	payer, err := ids.LoadIdentity(keystore.PayerKey)
	if err != nil {
		return nil, err
	}
	facilitator, err := ids.LoadIdentity(keystore.FacilitatorKey)
	if err != nil {
		return nil, err
	}

	payerTx, err := r.airdrop(ctx, "Payer", payer.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("fund payer: %w", err)
	}
	facilitatorTx, err := r.airdrop(ctx, "Facilitator", facilitator.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("fund facilitator: %w", err)
	}

	mint, err := r.createMint(ctx, payer)
	if err != nil {
		return nil, fmt.Errorf("create mint: %w", err)
	}

	return &FundResult{
		Command:              "fund",
		Result:               "success",
		PayerAirdropTx:       payerTx.String(),
		FacilitatorAirdropTx: facilitatorTx.String(),
		MintPubkey:           mint.Mint.String(),
		MintDecimals:         mint.Decimals,
	}, nil
}

// airdrop requests funds under the retry policy, then waits on the single
// receipt that request produced.
func (r *Runner) airdrop(ctx context.Context, label string, to solana.PublicKey) (solana.Signature, error) {
	lamports := ledger.SOLToLamports(r.cfg.Funding.AirdropSOL)
	r.report.Action(fmt.Sprintf("Airdropping %g SOL to %s...", r.cfg.Funding.AirdropSOL, label))

	sig, err := r.executor.Execute(ctx, ledger.FundingRequest{Label: label, Recipient: to, Lamports: lamports})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("airdrop: %w", err)
	}
	out, err := r.poller.AwaitConfirmation(ctx, sig, r.cfg.Confirm.MaxPolls, r.cfg.Confirm.PollInterval())
	if err != nil {
		return sig, err
	}
	r.record("fund", strings.ToLower(label)+"-airdrop", out, nil)
	if err := out.Err(); err != nil {
		return sig, err
	}

	r.report.Action(fmt.Sprintf("%s funded: %s Tx: %s", label, short(to), sig))
	r.log.Info().Str("label", label).Str("sig", sig.String()).Uint64("lamports", lamports).Msg("airdrop confirmed")
	return sig, nil
}

func (r *Runner) createMint(ctx context.Context, payer solana.PrivateKey) (keystore.MintDescriptor, error) {
	r.report.Action("Creating xUSD test token mint...")

	mint, err := keystore.Generate()
	if err != nil {
		return keystore.MintDescriptor{}, err
	}
	intent, err := r.builder.MintIntent(ctx, payer, mint, r.cfg.Mint.Decimals)
	if err != nil {
		return keystore.MintDescriptor{}, err
	}
	tx, err := r.builder.BuildAndSign(ctx, intent)
	if err != nil {
		return keystore.MintDescriptor{}, err
	}
	if _, err := r.confirmTx(ctx, "fund", intent.Label, tx); err != nil {
		return keystore.MintDescriptor{}, err
	}

	d := keystore.MintDescriptor{Mint: mint.PublicKey(), Decimals: r.cfg.Mint.Decimals}
	if err := keystore.SaveMint(r.path(r.cfg.Mint.SideFile), d); err != nil {
		return keystore.MintDescriptor{}, err
	}
	r.report.Action(fmt.Sprintf("Mint created: %s", short(d.Mint)))
	return d, nil
}
