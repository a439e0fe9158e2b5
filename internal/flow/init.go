package flow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cryptopatrick/xforth/internal/keystore"
)

// EnvFile is the identity store inside a project directory.
const EnvFile = ".env"

// Init creates the project directory with fresh payer and facilitator
// identities. It refuses to overwrite an existing store.
func (r *Runner) Init(name, rpcURL string) (*InitResult, error) {
	if name == "" {
		return nil, errors.New("project name is required")
	}
	projectDir := r.path(name)
	envPath := filepath.Join(projectDir, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		return nil, fmt.Errorf("%s already exists; refusing to overwrite existing keypairs", envPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", envPath, err)
	}

	r.report.Info("Generating keypairs...")
	payer, err := keystore.Generate()
	if err != nil {
		return nil, err
	}
	facilitator, err := keystore.Generate()
	if err != nil {
		return nil, err
	}
	r.report.Action(fmt.Sprintf("Generated Agent/Payer keypair: %s", payer.PublicKey()))
	r.report.Action(fmt.Sprintf("Generated Facilitator/Receiver keypair: %s", facilitator.PublicKey()))

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	// The facilitator program is not deployed yet; its pubkey stands in for the program id.
	programID := facilitator.PublicKey().String()
	store := keystore.New(envPath)
	store.PutIdentity(keystore.PayerKey, payer)
	store.PutIdentity(keystore.FacilitatorKey, facilitator)
	store.Set(keystore.ProgramIDKey, programID)
	store.Set(keystore.RPCURLKey, rpcURL)
	if err := store.Save(); err != nil {
		return nil, err
	}
	r.report.Action("Configuration file (.env) created")
	r.log.Info().Str("project", name).Str("path", envPath).Msg("project initialized")

	return &InitResult{
		Command:              "init",
		Result:               "success",
		ProjectName:          name,
		PayerPubkey:          payer.PublicKey().String(),
		FacilitatorPubkey:    facilitator.PublicKey().String(),
		FacilitatorProgramID: programID,
	}, nil
}
