// Package identity derives and persists the signing identities used against
// the local test network: the externally supplied owner, the fixed minting
// account that originates test funds, and deterministic numbered participants.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"daoctl/crypto"
)

// participantSalt feeds the deterministic seed derivation. Changing it would
// change every participant principal and orphan prior on-chain state.
const participantSalt = "suite-participant"

// mintingSeed is the fixed key material of the base ledger's minting account.
// Transfers originating from it are minted by the local test ledger and bypass
// balance checks. Test networks only.
var mintingSeed = [32]byte{
	0x22, 0x71, 0x02, 0x91, 0x1b, 0xb9, 0x9c, 0xe7,
	0x28, 0x5a, 0x55, 0xf9, 0x52, 0x80, 0x09, 0x12,
	0xb7, 0xd2, 0x2e, 0xbe, 0xee, 0xee, 0x59, 0xd7,
	0x7f, 0xc3, 0x3a, 0x5d, 0x7c, 0x70, 0x80, 0xbe,
}

// ErrSeedCorrupt marks an unreadable or malformed participant seed file. The
// seed is never regenerated in that case: a fresh seed would yield a different
// principal and silently orphan the participant's on-chain state.
var ErrSeedCorrupt = errors.New("identity: corrupt participant seed")

// Identity pairs a signing key with its derived principal.
type Identity struct {
	Principal crypto.Principal
	Key       crypto.Signer
}

// Manager persists participant seeds under a directory, one hex-encoded
// 32-byte seed per file named participant_<index>.seed.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// SeedPath returns the seed file location for the given participant index.
func (m *Manager) SeedPath(index int) string {
	return filepath.Join(m.dir, fmt.Sprintf("participant_%d.seed", index))
}

// Participant returns the identity for the given index. The first call derives
// a seed from the fixed salt and index and persists it; every later call loads
// the persisted seed verbatim, so the principal is stable across runs even if
// the derivation ever changes.
func (m *Manager) Participant(index int) (*Identity, error) {
	if index < 1 {
		return nil, fmt.Errorf("identity: participant index must be >= 1, got %d", index)
	}
	path := m.SeedPath(index)
	if _, err := os.Stat(path); err == nil {
		return m.loadSeedFile(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSeedCorrupt, path, err)
	}

	seed := DeriveSeed(index)
	if err := m.saveSeedFile(path, seed[:]); err != nil {
		return nil, err
	}
	key, err := crypto.NewEd25519KeyFromSeed(seed[:])
	if err != nil {
		return nil, err
	}
	return &Identity{Principal: key.Principal(), Key: key}, nil
}

// Load returns the identity persisted at an arbitrary seed file path, as
// recorded in a deployment record.
func (m *Manager) Load(seedPath string) (*Identity, error) {
	return m.loadSeedFile(seedPath)
}

// DeriveSeed is the pure derivation: sha256 of the fixed salt and the index.
// No I/O, no network.
func DeriveSeed(index int) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s-%d", participantSalt, index)))
}

func (m *Manager) loadSeedFile(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSeedCorrupt, path, err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex: %v", ErrSeedCorrupt, path, err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("%w: %s holds %d bytes, want 32", ErrSeedCorrupt, path, len(decoded))
	}
	key, err := crypto.NewEd25519KeyFromSeed(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	return &Identity{Principal: key.Principal(), Key: key}, nil
}

func (m *Manager) saveSeedFile(path string, seed []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create seed directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return fmt.Errorf("identity: write seed file %s: %w", path, err)
	}
	return nil
}

// Minting returns the fixed minting identity of the base ledger.
func Minting() *Identity {
	key, err := crypto.NewEd25519KeyFromSeed(mintingSeed[:])
	if err != nil {
		panic(err) // fixed-size seed, cannot fail
	}
	return &Identity{Principal: key.Principal(), Key: key}
}

// LoadOwner loads the caller-supplied owner identity. An Ethereum v3 keystore
// is tried first; a raw hex seed file (the participant format) is accepted as
// a fallback so owners generated by other tooling keep working.
func LoadOwner(path, passphrase string) (*Identity, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("identity: owner identity path not configured")
	}
	if key, err := crypto.LoadFromKeystore(path, passphrase); err == nil {
		return &Identity{Principal: key.Principal(), Key: key}, nil
	}
	m := Manager{}
	id, err := m.loadSeedFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: %s is neither a keystore nor a seed file: %w", path, err)
	}
	return id, nil
}
