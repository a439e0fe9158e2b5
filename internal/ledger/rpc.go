// Package ledger submits transactions to a Solana RPC node and waits for them to land.
package ledger

import (
	"context"
	"math"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPC is the subset of the JSON-RPC surface the engine uses. *rpc.Client satisfies it.
type RPC interface {
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
}

var _ RPC = (*rpc.Client)(nil)

// NewClient dials nothing; the rpc client is lazy.
func NewClient(rpcURL string) *rpc.Client {
	return rpc.New(rpcURL)
}

// ParseCommitment maps a config string to a commitment level, defaulting to confirmed.
func ParseCommitment(commit string) rpc.CommitmentType {
	c := rpc.CommitmentConfirmed
	switch commit {
	case "processed":
		c = rpc.CommitmentProcessed
	case "finalized":
		c = rpc.CommitmentFinalized
	}
	return c
}

// SOLToLamports converts whole SOL to base units.
func SOLToLamports(sol float64) uint64 {
	return uint64(math.Round(sol * float64(solana.LAMPORTS_PER_SOL)))
}

// LamportsToSOL converts base units to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// Balance reads an account balance in lamports.
func Balance(ctx context.Context, client RPC, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	out, err := client.GetBalance(ctx, account, commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}
