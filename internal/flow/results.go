package flow

import "fmt"

// InitResult is the outcome of the init command. Field order is the JSON order.
type InitResult struct {
	Command              string `json:"command"`
	Result               string `json:"result"`
	ProjectName          string `json:"project_name"`
	PayerPubkey          string `json:"payer_pubkey"`
	FacilitatorPubkey    string `json:"facilitator_pubkey"`
	FacilitatorProgramID string `json:"facilitator_program_id"`
}

// Summary is the human rendering.
func (r *InitResult) Summary() []string {
	return []string{
		"Project initialized successfully!",
		"",
		"Next steps:",
		fmt.Sprintf("1. cd %s", r.ProjectName),
		"2. xforth fund",
		"3. xforth test",
	}
}

// FundResult is the outcome of the fund command.
type FundResult struct {
	Command              string `json:"command"`
	Result               string `json:"result"`
	PayerAirdropTx       string `json:"payer_airdrop_tx"`
	FacilitatorAirdropTx string `json:"facilitator_airdrop_tx"`
	MintPubkey           string `json:"mint_pubkey"`
	MintDecimals         uint8  `json:"mint_decimals"`
}

// Summary is the human rendering.
func (r *FundResult) Summary() []string {
	return []string{fmt.Sprintf("Wallets funded. Mint: %s", r.MintPubkey)}
}

// TestResult is the outcome of the test command.
type TestResult struct {
	Command                  string  `json:"command"`
	Result                   string  `json:"result"`
	TransactionSignature     string  `json:"transaction_signature"`
	TransferAmountSOL        float64 `json:"transfer_amount_sol"`
	PayerBalanceBefore       float64 `json:"payer_balance_before"`
	PayerBalanceAfter        float64 `json:"payer_balance_after"`
	FacilitatorBalanceBefore float64 `json:"facilitator_balance_before"`
	FacilitatorBalanceAfter  float64 `json:"facilitator_balance_after"`
}

// Summary is the human rendering.
func (r *TestResult) Summary() []string {
	return []string{
		fmt.Sprintf("Payment successful! Tx: %s", r.TransactionSignature),
		fmt.Sprintf("Payer balance: %g SOL -> %g SOL", r.PayerBalanceBefore, r.PayerBalanceAfter),
		fmt.Sprintf("Facilitator balance: %g SOL -> %g SOL", r.FacilitatorBalanceBefore, r.FacilitatorBalanceAfter),
		"All tests passed! Your x402 setup is ready to use.",
	}
}

// InsufficientBalanceError stops the test command before anything is built.
type InsufficientBalanceError struct {
	HaveSOL float64
	NeedSOL float64
	Action  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient payer balance: %g SOL, need at least %g SOL. Run '%s' first", e.HaveSOL, e.NeedSOL, e.Action)
}
