package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// Well-known entries of the project .env file.
const (
	PayerKey       = "PAYER_KEYPAIR"
	FacilitatorKey = "FACILITATOR_KEYPAIR"
	ProgramIDKey   = "FACILITATOR_PROGRAM_ID"
	RPCURLKey      = "RPC_URL"

	MintKey         = "XUSD_MINT"
	MintDecimalsKey = "XUSD_DECIMALS"
)

// NotFoundError reports a name that has no entry in the store.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in %s", e.Name, e.Path)
}

// Store is a key=value dotenv file held in memory between Open and Save.
// It has no locking; one command owns it per process.
type Store struct {
	path   string
	values map[string]string
}

// New returns an empty store that will be written to path.
func New(path string) *Store {
	return &Store{path: path, values: map[string]string{}}
}

// Open reads an existing store.
func Open(path string) (*Store, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w (run 'xforth init' and cd into the project first)", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &Store{path: path, values: values}, nil
}

// Get returns a raw value.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Set stores a raw value; call Save to persist.
func (s *Store) Set(name, value string) { s.values[name] = value }

// LoadIdentity decodes the named keypair.
func (s *Store) LoadIdentity(name string) (solana.PrivateKey, error) {
	raw, ok := s.values[name]
	if !ok || raw == "" {
		return nil, &NotFoundError{Name: name, Path: s.path}
	}
	key, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}

// PutIdentity stores a keypair under name.
func (s *Store) PutIdentity(name string, key solana.PrivateKey) {
	s.values[name] = Encode(key)
}

// Save writes the store with owner-only permissions since it holds secrets.
// The mode is set on open, and narrowed before writing when the file already existed.
func (s *Store) Save() error {
	content, err := godotenv.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.path, err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	defer file.Close()
	if err := file.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", s.path, err)
	}
	if _, err := file.WriteString(content + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return file.Sync()
}

// MintDescriptor identifies the token mint created by the fund command.
type MintDescriptor struct {
	Mint     solana.PublicKey
	Decimals uint8
}

// SaveMint writes the descriptor to its side file. It is derived output, not a
// secret, so it lives apart from the identity store.
func SaveMint(path string, d MintDescriptor) error {
	values := map[string]string{
		MintKey:         d.Mint.String(),
		MintDecimalsKey: strconv.Itoa(int(d.Decimals)),
	}
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadMint reads a descriptor written by SaveMint.
func LoadMint(path string) (MintDescriptor, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return MintDescriptor{}, fmt.Errorf("load %s: %w", path, err)
	}
	raw, ok := values[MintKey]
	if !ok {
		return MintDescriptor{}, &NotFoundError{Name: MintKey, Path: path}
	}
	mint, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return MintDescriptor{}, fmt.Errorf("%s: %w", MintKey, err)
	}
	d := MintDescriptor{Mint: mint}
	if dec, ok := values[MintDecimalsKey]; ok {
		n, err := strconv.ParseUint(dec, 10, 8)
		if err != nil {
			return MintDescriptor{}, fmt.Errorf("%s: %w", MintDecimalsKey, err)
		}
		d.Decimals = uint8(n)
	}
	return d, nil
}
