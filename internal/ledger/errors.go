package ledger

import (
	"errors"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrRateLimited marks a failure worth retrying after a backoff.
var ErrRateLimited = errors.New("rate limited")

// IsRateLimited reports whether err is the node asking us to slow down.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many")
}

// TerminalRequestError is a request failure that retrying cannot fix.
type TerminalRequestError struct {
	Attempt int
	Err     error
}

func (e *TerminalRequestError) Error() string {
	return fmt.Sprintf("request failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *TerminalRequestError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every attempt was rate limited.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// OnChainFailureError means the transaction was processed and failed. It definitely did not apply.
type OnChainFailureError struct {
	Receipt solana.Signature
	Detail  string
}

func (e *OnChainFailureError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Receipt, e.Detail)
}

// Outcome is the poll result this error was built from.
func (e *OnChainFailureError) Outcome() Outcome {
	return Outcome{State: Failed, Receipt: e.Receipt, Detail: e.Detail}
}

// ConfirmationTimeoutError means no status was seen within the polling budget.
// The transaction may still land.
type ConfirmationTimeoutError struct {
	Receipt solana.Signature
	Polls   int
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %d polls; outcome unknown, it may still land", e.Receipt, e.Polls)
}

func (e *ConfirmationTimeoutError) Outcome() Outcome {
	return Outcome{State: TimedOut, Receipt: e.Receipt, Polls: e.Polls}
}

// MissingSignerError is raised before any network call when the signer set is incomplete.
type MissingSignerError struct {
	Missing []solana.PublicKey
}

func (e *MissingSignerError) Error() string {
	keys := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		keys[i] = k.String()
	}
	return "missing signer(s): " + strings.Join(keys, ", ")
}

// StaleBlockhashError means the network no longer recognises the blockhash the transaction was signed with.
type StaleBlockhashError struct {
	Blockhash solana.Hash
	Err       error
}

func (e *StaleBlockhashError) Error() string {
	return fmt.Sprintf("blockhash %s expired before submission: %v", e.Blockhash, e.Err)
}

func (e *StaleBlockhashError) Unwrap() error { return e.Err }

// SubmissionError is any other rejection of a signed transaction.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("send transaction: %v", e.Err) }

func (e *SubmissionError) Unwrap() error { return e.Err }

func isStaleBlockhash(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "block height exceeded")
}
