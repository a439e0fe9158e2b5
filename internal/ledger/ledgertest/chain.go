// Package ledgertest provides an in-memory chain implementing ledger.RPC for tests.
package ledgertest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// DefaultFee is charged per signature, like the real fee schedule.
const DefaultFee = 5000

// RateLimit is the error a public node returns when throttling.
func RateLimit() error {
	return &jsonrpc.RPCError{Code: 429, Message: "Too Many Requests"}
}

// Chain is a tiny ledger: balances, signature statuses, and system program transfers.
type Chain struct {
	mu sync.Mutex

	Fee  uint64
	Rent uint64
	// AirdropErrs are returned by successive RequestAirdrop calls before any succeeds.
	AirdropErrs []error
	// PendingPolls is how many status queries see nothing before a status appears.
	PendingPolls int
	// Withhold keeps every status absent forever.
	Withhold bool
	// SendErr rejects every submission.
	SendErr error

	balances  map[solana.PublicKey]uint64
	statuses  map[solana.Signature]*rpc.SignatureStatusesResult
	pending   map[solana.Signature]int
	calls     map[string]int
	sent      []*solana.Transaction
	owners    map[solana.PublicKey]solana.PublicKey
	seq       uint64
	blockhash solana.Hash
}

// NewChain returns an empty chain with default fee and rent.
func NewChain() *Chain {
	return &Chain{
		Fee:      DefaultFee,
		Rent:     1_461_600,
		balances: map[solana.PublicKey]uint64{},
		statuses: map[solana.Signature]*rpc.SignatureStatusesResult{},
		pending:  map[solana.Signature]int{},
		calls:    map[string]int{},
		owners:   map[solana.PublicKey]solana.PublicKey{},
	}
}

// SetBalance seeds an account.
func (c *Chain) SetBalance(pk solana.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[pk] = lamports
}

// BalanceOf reads an account without counting as an RPC call.
func (c *Chain) BalanceOf(pk solana.PublicKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[pk]
}

// OwnerOf returns the program that owns an account created through the chain.
func (c *Chain) OwnerOf(pk solana.PublicKey) (solana.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[pk]
	return owner, ok
}

// Calls reports how often method was invoked.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls counts every RPC invocation.
func (c *Chain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Sent returns the transactions accepted so far.
func (c *Chain) Sent() []*solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*solana.Transaction(nil), c.sent...)
}

func (c *Chain) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["requestAirdrop"]++
	if len(c.AirdropErrs) > 0 {
		err := c.AirdropErrs[0]
		c.AirdropErrs = c.AirdropErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	c.balances[account] += lamports
	sig := c.nextSignature()
	c.settle(sig, nil)
	return sig, nil
}

func (c *Chain) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getSignatureStatuses"]++
	out := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	for i, sig := range sigs {
		if c.Withhold {
			continue
		}
		if c.pending[sig] > 0 {
			c.pending[sig]--
			continue
		}
		out.Value[i] = c.statuses[sig]
	}
	return out, nil
}

func (c *Chain) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getLatestBlockhash"]++
	c.seq++
	binary.LittleEndian.PutUint64(c.blockhash[:], c.seq)
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: c.blockhash, LastValidBlockHeight: c.seq + 150}}, nil
}

func (c *Chain) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["sendTransaction"]++
	if c.SendErr != nil {
		return solana.Signature{}, c.SendErr
	}
	if tx.Message.RecentBlockhash != c.blockhash {
		return solana.Signature{}, errors.New("Transaction simulation failed: Blockhash not found")
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signatures: %w", err)
	}
	c.sent = append(c.sent, tx)
	sig := tx.Signatures[0]
	c.settle(sig, c.apply(tx))
	return sig, nil
}

func (c *Chain) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getBalance"]++
	return &rpc.GetBalanceResult{Value: c.balances[account]}, nil
}

func (c *Chain) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getMinimumBalanceForRentExemption"]++
	return c.Rent, nil
}

func (c *Chain) nextSignature() solana.Signature {
	c.seq++
	var sig solana.Signature
	binary.LittleEndian.PutUint64(sig[:], c.seq)
	return sig
}

func (c *Chain) settle(sig solana.Signature, execErr interface{}) {
	c.pending[sig] = c.PendingPolls
	c.statuses[sig] = &rpc.SignatureStatusesResult{
		Slot:               c.seq,
		Err:                execErr,
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
	}
}

// apply executes system program instructions all-or-nothing. The fee is
// charged even when execution fails.
func (c *Chain) apply(tx *solana.Transaction) interface{} {
	keys := tx.Message.AccountKeys
	payer := keys[0]
	fee := c.Fee * uint64(len(tx.Signatures))
	if c.balances[payer] < fee {
		return "InsufficientFundsForFee"
	}
	c.balances[payer] -= fee

	next := make(map[solana.PublicKey]uint64, len(c.balances))
	for k, v := range c.balances {
		next[k] = v
	}
	owners := map[solana.PublicKey]solana.PublicKey{}
	for i, ix := range tx.Message.Instructions {
		if !keys[ix.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		dec := bin.NewBinDecoder(ix.Data)
		kind, err := dec.ReadUint32(binary.LittleEndian)
		if err != nil {
			return instructionError(i, "InvalidInstructionData")
		}
		lamports, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return instructionError(i, "InvalidInstructionData")
		}
		from, to := keys[ix.Accounts[0]], keys[ix.Accounts[1]]
		switch kind {
		case 0: // CreateAccount: lamports, space, owner
			if _, err := dec.ReadUint64(binary.LittleEndian); err != nil {
				return instructionError(i, "InvalidInstructionData")
			}
			ownerBytes, err := dec.ReadNBytes(32)
			if err != nil {
				return instructionError(i, "InvalidInstructionData")
			}
			owners[to] = solana.PublicKeyFromBytes(ownerBytes)
		case 2: // Transfer
		default:
			continue
		}
		if next[from] < lamports {
			return instructionError(i, map[string]int{"Custom": 1})
		}
		next[from] -= lamports
		next[to] += lamports
	}
	c.balances = next
	for k, v := range owners {
		c.owners[k] = v
	}
	return nil
}

func instructionError(index int, detail interface{}) interface{} {
	return map[string]interface{}{"InstructionError": []interface{}{index, detail}}
}

// Clock is a Sleeper that records waits instead of sleeping.
type Clock struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns immediately.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Waits lists recorded delays in order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Total sums recorded delays.
func (c *Clock) Total() time.Duration {
	var total time.Duration
	for _, d := range c.Waits() {
		total += d
	}
	return total
}
