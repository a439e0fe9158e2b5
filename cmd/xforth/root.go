package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cryptopatrick/xforth/internal/config"
	"github.com/cryptopatrick/xforth/internal/flow"
	"github.com/cryptopatrick/xforth/internal/journal"
	"github.com/cryptopatrick/xforth/internal/keystore"
	"github.com/cryptopatrick/xforth/internal/ledger"
	"github.com/cryptopatrick/xforth/internal/metrics"
	"github.com/cryptopatrick/xforth/internal/present"
	"github.com/cryptopatrick/xforth/internal/util"
)

var version = "dev"

// newRPC is swapped in tests.
var newRPC = func(url string) ledger.RPC { return ledger.NewClient(url) }

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("XFORTH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "xforth",
		Short:         "Bootstrap x402 Solana projects: keypairs, funding and a test payment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("rpc", "", "override RPC endpoint")
	flags.Bool("local", false, "use a local validator at "+config.LocalURL)
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("json", false, "output in JSON format")
	flags.String("config", "xforth.yaml", "optional config file")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	_ = v.BindPFlags(flags)

	root.AddCommand(
		&cobra.Command{
			Use:   "init [name]",
			Short: "Initialize a new x402 project",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := "my-x402-agent"
				if len(args) == 1 {
					name = args[0]
				}
				return run(cmd, v, "init", false, func(ctx context.Context, r *flow.Runner, _ *keystore.Store, url string) (present.Summarizer, error) {
					return r.Init(name, url)
				})
			},
		},
		&cobra.Command{
			Use:   "fund",
			Short: "Fund wallets with SOL and create the test token mint",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, v, "fund", true, func(ctx context.Context, r *flow.Runner, store *keystore.Store, _ string) (present.Summarizer, error) {
					return r.Fund(ctx, store)
				})
			},
		},
		&cobra.Command{
			Use:   "test",
			Short: "Validate the payment flow with a test transaction",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, v, "test", true, func(ctx context.Context, r *flow.Runner, store *keystore.Store, _ string) (present.Summarizer, error) {
					return r.Test(ctx, store)
				})
			},
		},
	)
	return root
}

// reportedError marks a failure the printer has already written.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// executeRoot runs the command tree. Failures cobra raises before a command
// runs (bad arguments, unknown flags or subcommands) are printed here since
// the root silences cobra's own error output.
func executeRoot(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if err == nil {
		return nil
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return err
	}
	name := root.Name()
	if cmd != nil {
		name = cmd.Name()
	}
	flags := root.PersistentFlags()
	jsonOut, _ := flags.GetBool("json")
	noColor, _ := flags.GetBool("no-color")
	present.New(root.OutOrStdout(), root.ErrOrStderr(), present.Options{JSON: jsonOut, NoColor: noColor}).Error(name, err)
	return err
}

type command func(ctx context.Context, r *flow.Runner, store *keystore.Store, url string) (present.Summarizer, error)

// run wires config, logging, metrics, the identity store and the presenter
// around one flow.
func run(cmd *cobra.Command, v *viper.Viper, name string, needStore bool, fn command) error {
	jsonOut, noColor := v.GetBool("json"), v.GetBool("no-color")
	printer := present.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), present.Options{JSON: jsonOut, NoColor: noColor})

	res, err := execute(cmd, v, printer, needStore, fn)
	if err != nil {
		printer.Error(name, err)
		return &reportedError{err: err}
	}
	return printer.Result(res)
}

func execute(cmd *cobra.Command, v *viper.Viper, printer *present.Printer, needStore bool, fn command) (present.Summarizer, error) {
	cfg, err := config.LoadOrDefault(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.App.LogLevel = lvl
	}

	var log zerolog.Logger
	if v.GetBool("json") {
		log = util.NewLogger(cmd.ErrOrStderr(), cfg.App.LogLevel)
	} else {
		log = util.NewConsoleLogger(cmd.ErrOrStderr(), cfg.App.LogLevel, v.GetBool("no-color"))
	}

	if srv := metrics.Serve(cfg.App.MetricsAddr); srv != nil {
		defer srv.Close()
	}

	var rec journal.Recorder = journal.NewMemory(4)
	if cfg.App.JournalPath != "" {
		jr, err := journal.NewJSONLRecorder(cfg.App.JournalPath)
		if err != nil {
			return nil, err
		}
		defer jr.Close()
		rec = jr
	}

	// fund and test reuse the endpoint init recorded unless a flag overrides it
	override := v.GetString("rpc")
	var store *keystore.Store
	if needStore {
		store, err = keystore.Open(flow.EnvFile)
		if err != nil {
			return nil, err
		}
		if saved, ok := store.Get(keystore.RPCURLKey); ok && override == "" {
			override = saved
		}
	}
	url := cfg.Network.ResolveURL(v.GetBool("local"), override)
	log.Debug().Str("rpc", url).Msg("resolved endpoint")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner, err := flow.NewRunner(newRPC(url), flow.Options{
		Config:   cfg,
		Log:      log,
		Journal:  rec,
		Reporter: printer,
	})
	if err != nil {
		return nil, err
	}
	return fn(ctx, runner, store, url)
}
