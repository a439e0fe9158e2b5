// Package present renders command progress and results for people or for machines.
package present

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/cryptopatrick/xforth/internal/ledger"
)

// Options select the output mode. Colour is configuration, not process state.
type Options struct {
	JSON    bool
	NoColor bool
}

// Summarizer is a typed command result with a human rendering.
type Summarizer interface {
	Summary() []string
}

// ErrorResult is the JSON document written when a command fails.
type ErrorResult struct {
	Command        string `json:"command"`
	Result         string `json:"result"`
	Error          string `json:"error"`
	OutcomeUnknown bool   `json:"outcome_unknown"`
}

// Printer writes progress lines and the final result.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	json   bool

	action lipgloss.Style
	info   lipgloss.Style
	fail   lipgloss.Style
}

// New builds a Printer. In JSON mode progress lines are dropped and stdout
// carries only the result document.
func New(out, errOut io.Writer, opts Options) *Printer {
	p := &Printer{out: out, errOut: errOut, json: opts.JSON}
	if opts.NoColor {
		plain := lipgloss.NewStyle()
		p.action, p.info, p.fail = plain, plain, plain
		return p
	}
	r := lipgloss.NewRenderer(out)
	p.action = r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	p.info = r.NewStyle().Foreground(lipgloss.Color("3"))
	p.fail = lipgloss.NewRenderer(errOut).NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	return p
}

// Action reports a step that changed something.
func (p *Printer) Action(msg string) {
	if p.json {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.action.Render("Action:"), msg)
}

// Info reports progress.
func (p *Printer) Info(msg string) {
	if p.json {
		return
	}
	fmt.Fprintf(p.out, "%s %q\n", p.info.Render("Log:"), msg)
}

// Result writes the command outcome.
func (p *Printer) Result(res Summarizer) error {
	if p.json {
		return p.writeJSON(p.out, res)
	}
	for _, line := range res.Summary() {
		fmt.Fprintln(p.out, line)
	}
	return nil
}

// Error reports a failed command, flagging failures whose outcome is unknown.
func (p *Printer) Error(command string, err error) {
	unknown := OutcomeUnknown(err)
	if p.json {
		_ = p.writeJSON(p.out, ErrorResult{Command: command, Result: "error", Error: err.Error(), OutcomeUnknown: unknown})
		return
	}
	fmt.Fprintf(p.errOut, "%s %v\n", p.fail.Render("Error:"), err)
	if unknown {
		fmt.Fprintln(p.errOut, "The transaction may still land; check the signature before retrying.")
	}
}

// OutcomeUnknown is true when err carries a poll outcome that leaves open
// whether the transaction applied.
func OutcomeUnknown(err error) bool {
	var polled interface{ Outcome() ledger.Outcome }
	return errors.As(err, &polled) && polled.Outcome().Unknown()
}

func (p *Printer) writeJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
