package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/cryptopatrick/xforth/internal/metrics"
)

// MintSize is the length of an SPL mint account.
const MintSize = 82

var (
	// TokenProgramID is the legacy SPL token program.
	TokenProgramID = solana.TokenProgramID
	// Token2022ProgramID is the token extensions program.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// TokenProgram resolves the config name of a token program.
func TokenProgram(name string) (solana.PublicKey, error) {
	switch name {
	case "token-2022", "":
		return Token2022ProgramID, nil
	case "token":
		return TokenProgramID, nil
	}
	return solana.PublicKey{}, fmt.Errorf("unknown token program %q", name)
}

// Intent is an ordered list of instructions to be signed and submitted atomically.
type Intent struct {
	Label        string
	Instructions []solana.Instruction
	FeePayer     solana.PublicKey
	Signers      []solana.PrivateKey
}

// RequiredSigners lists the fee payer followed by every signer account, in order, without duplicates.
func (in Intent) RequiredSigners() []solana.PublicKey {
	seen := map[solana.PublicKey]bool{in.FeePayer: true}
	out := []solana.PublicKey{in.FeePayer}
	for _, ix := range in.Instructions {
		for _, acc := range ix.Accounts() {
			if acc.IsSigner && !seen[acc.PublicKey] {
				seen[acc.PublicKey] = true
				out = append(out, acc.PublicKey)
			}
		}
	}
	return out
}

// Validate checks the intent without touching the network.
func (in Intent) Validate() error {
	if len(in.Instructions) == 0 {
		return errors.New("intent has no instructions")
	}
	if in.FeePayer.IsZero() {
		return errors.New("intent has no fee payer")
	}
	have := make(map[solana.PublicKey]bool, len(in.Signers))
	for _, key := range in.Signers {
		have[key.PublicKey()] = true
	}
	var missing []solana.PublicKey
	for _, pk := range in.RequiredSigners() {
		if !have[pk] {
			missing = append(missing, pk)
		}
	}
	if len(missing) > 0 {
		return &MissingSignerError{Missing: missing}
	}
	return nil
}

// Builder turns intents into signed transactions and submits them.
type Builder struct {
	rpc          RPC
	commitment   rpc.CommitmentType
	tokenProgram solana.PublicKey
	log          zerolog.Logger
}

// NewBuilder returns a Builder creating mints owned by tokenProgram.
func NewBuilder(client RPC, commitment rpc.CommitmentType, tokenProgram solana.PublicKey, log zerolog.Logger) *Builder {
	return &Builder{rpc: client, commitment: commitment, tokenProgram: tokenProgram, log: log}
}

// BuildAndSign validates signers, then fetches a blockhash and signs right away
// so the hash is as fresh as possible at submission.
func (b *Builder) BuildAndSign(ctx context.Context, intent Intent) (*solana.Transaction, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	latest, err := b.rpc.GetLatestBlockhash(ctx, b.commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(intent.Instructions, latest.Value.Blockhash, solana.TransactionPayer(intent.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(intent.Signers))
	for _, key := range intent.Signers {
		keys[key.PublicKey()] = key
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if key, ok := keys[pk]; ok {
			return &key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	b.log.Debug().Str("intent", intent.Label).Int("instructions", len(intent.Instructions)).Str("blockhash", latest.Value.Blockhash.String()).Msg("signed transaction")
	return tx, nil
}

// Submit sends a signed transaction and returns once the node has accepted it.
// Acceptance is not confirmation; nothing is retried here.
func (b *Builder) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := b.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: b.commitment,
	})
	if err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		if isStaleBlockhash(err) {
			return sig, &StaleBlockhashError{Blockhash: tx.Message.RecentBlockhash, Err: err}
		}
		return sig, &SubmissionError{Err: err}
	}
	metrics.Submissions.WithLabelValues("accepted").Inc()
	b.log.Debug().Str("sig", sig.String()).Msg("transaction accepted")
	return sig, nil
}

// SubmitAndConfirm submits tx and waits on the poller. A non-confirmed outcome is
// returned together with its typed error.
func (b *Builder) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction, poller *Poller, maxPolls int, interval time.Duration) (Outcome, error) {
	sig, err := b.Submit(ctx, tx)
	if err != nil {
		return Outcome{}, err
	}
	out, err := poller.AwaitConfirmation(ctx, sig, maxPolls, interval)
	if err != nil {
		return out, err
	}
	return out, out.Err()
}

// MintIntent creates a fresh account sized and funded for a mint, then
// initializes it with payer as mint authority and no freeze authority.
func (b *Builder) MintIntent(ctx context.Context, payer, mint solana.PrivateKey, decimals uint8) (Intent, error) {
	rent, err := b.rpc.GetMinimumBalanceForRentExemption(ctx, MintSize, b.commitment)
	if err != nil {
		return Intent{}, fmt.Errorf("get rent exemption: %w", err)
	}
	ixs, err := MintInstructions(payer.PublicKey(), mint.PublicKey(), rent, decimals, b.tokenProgram)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		Label:        "create-mint",
		Instructions: ixs,
		FeePayer:     payer.PublicKey(),
		Signers:      []solana.PrivateKey{payer, mint},
	}, nil
}

// MintInstructions returns create-account followed by initialize-mint. The
// order matters: the account must exist before it is initialized.
func MintInstructions(payer, mint solana.PublicKey, rentLamports uint64, decimals uint8, tokenProgram solana.PublicKey) ([]solana.Instruction, error) {
	create := system.NewCreateAccountInstruction(rentLamports, MintSize, tokenProgram, payer, mint).Build()

	initMint, err := token.NewInitializeMintInstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(payer).
		SetMintAccount(mint).
		SetSysVarRentPubkeyAccount(solana.SysVarRentPubkey).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("initialize mint: %w", err)
	}
	data, err := initMint.Data()
	if err != nil {
		return nil, fmt.Errorf("encode initialize mint: %w", err)
	}
	// token-2022 shares the instruction layout; only the program id differs.
	return []solana.Instruction{
		create,
		solana.NewInstruction(tokenProgram, initMint.Accounts(), data),
	}, nil
}

// TransferIntent moves lamports from payer to recipient.
func TransferIntent(payer solana.PrivateKey, recipient solana.PublicKey, lamports uint64) Intent {
	return Intent{
		Label:        "transfer",
		Instructions: []solana.Instruction{system.NewTransferInstruction(lamports, payer.PublicKey(), recipient).Build()},
		FeePayer:     payer.PublicKey(),
		Signers:      []solana.PrivateKey{payer},
	}
}

// Encode renders a signed transaction in base64 wire format.
func Encode(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal tx: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
