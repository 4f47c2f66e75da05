package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrincipalPrefix is the human-readable part of every principal's text form.
const PrincipalPrefix = "dao"

// ErrInvalidPrincipal is returned when a textual principal cannot be decoded.
var ErrInvalidPrincipal = errors.New("crypto: invalid principal")

// Principal identifies an account holder or a remote service. It is a 20-byte
// digest of the owning public key (or, for services, an assigned identifier)
// rendered as bech32 with the "dao" prefix.
type Principal struct {
	bytes [20]byte
	set   bool
}

func NewPrincipal(b []byte) (Principal, error) {
	if len(b) != 20 {
		return Principal{}, fmt.Errorf("%w: need 20 bytes, got %d", ErrInvalidPrincipal, len(b))
	}
	var p Principal
	copy(p.bytes[:], b)
	p.set = true
	return p, nil
}

// PrincipalFromPublicKey derives the principal for an ed25519 public key.
func PrincipalFromPublicKey(pub ed25519.PublicKey) Principal {
	sum := sha256.Sum256(pub)
	var p Principal
	copy(p.bytes[:], sum[:20])
	p.set = true
	return p
}

func (p Principal) String() string {
	conv, err := bech32.ConvertBits(p.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(PrincipalPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (p Principal) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, p.bytes[:])
	return out
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return !p.set }

func (p Principal) Equal(other Principal) bool {
	return p.set == other.set && p.bytes == other.bytes
}

func DecodePrincipal(text string) (Principal, error) {
	prefix, decoded, err := bech32.Decode(text)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if prefix != PrincipalPrefix {
		return Principal{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidPrincipal, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	return NewPrincipal(conv)
}

func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Principal) UnmarshalText(text []byte) error {
	decoded, err := DecodePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// Signer is implemented by every key type that can authorise state-changing
// calls against a remote service.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() []byte
	Principal() Principal
}

// --- Ed25519 keys (participants and the minting account) ---

type Ed25519Key struct {
	priv ed25519.PrivateKey
}

// NewEd25519KeyFromSeed builds a key pair from a 32-byte seed. The same seed
// always yields the same principal.
func NewEd25519KeyFromSeed(seed []byte) (*Ed25519Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Key{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Ed25519Key) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

func (k *Ed25519Key) PublicKey() []byte {
	return []byte(k.priv.Public().(ed25519.PublicKey))
}

func (k *Ed25519Key) Principal() Principal {
	return PrincipalFromPublicKey(k.priv.Public().(ed25519.PublicKey))
}

// Seed returns the 32-byte seed the key was derived from.
func (k *Ed25519Key) Seed() []byte { return k.priv.Seed() }

// --- Secp256k1 keys (owner identities loaded from keystores) ---

type Secp256k1Key struct {
	priv *ecdsa.PrivateKey
}

func GenerateSecp256k1Key() (*Secp256k1Key, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Secp256k1Key{priv: key}, nil
}

func Secp256k1KeyFromECDSA(key *ecdsa.PrivateKey) *Secp256k1Key {
	return &Secp256k1Key{priv: key}
}

func (k *Secp256k1Key) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ethcrypto.Sign(digest[:], k.priv)
}

func (k *Secp256k1Key) PublicKey() []byte {
	return ethcrypto.FromECDSAPub(&k.priv.PublicKey)
}

func (k *Secp256k1Key) Principal() Principal {
	addr := ethcrypto.PubkeyToAddress(k.priv.PublicKey)
	var p Principal
	copy(p.bytes[:], addr.Bytes())
	p.set = true
	return p
}

// ECDSA exposes the underlying key for keystore export.
func (k *Secp256k1Key) ECDSA() *ecdsa.PrivateKey { return k.priv }
