package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"sync"

	cryptorsa "crypto/rsa"
)

// KeyManager holds the signing keys for this instance. Keys are generated in
// memory at startup; all tokens become invalid on restart, which doubles as a
// crude key rotation story.
//
// Multiple keys are kept live so rotation can retire one kid while tokens
// signed by it are still in flight. Signing picks a key at random.
type KeyManager struct {
	KeySet *KeySet

	mu        sync.RWMutex
	signers   []Signer
	algorithm string
	rsaBits   int
}

// KeyManagerOptions configures key generation.
type KeyManagerOptions struct {
	// Algorithm is one of RS256, ES256, EdDSA. Defaults to EdDSA.
	Algorithm string
	// RSABits is the RSA key size for RS256. Defaults to 2048, which is
	// also the minimum.
	RSABits int
	// NumKeys is how many signing keys to generate (default 2, max 10).
	NumKeys int
}

// NewEphemeralKeyManager generates NumKeys fresh signing keys and registers
// their public halves in the KeySet.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	alg := opts.Algorithm
	if alg == "" {
		alg = AlgorithmEdDSA
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 2
	}
	if numKeys > 10 {
		numKeys = 10
	}

	m := &KeyManager{
		KeySet:    NewKeySet(),
		algorithm: alg,
		rsaBits:   opts.RSABits,
	}

	for range numKeys {
		if err := m.generateKey(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Algorithm returns the configured signing algorithm.
func (m *KeyManager) Algorithm() string { return m.algorithm }

// Signer returns a signer for the configured algorithm, chosen at random to
// spread load across keys. Returns ErrNoSigningKey when none are available.
func (m *KeyManager) Signer() (Signer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.signers) == 0 {
		return nil, ErrNoSigningKey
	}
	return m.signers[mathrand.IntN(len(m.signers))], nil
}

// Rotate generates a fresh key and adds it to the live set.
func (m *KeyManager) Rotate() (Signer, error) {
	if err := m.generateKey(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signers[len(m.signers)-1], nil
}

// Retire removes the key with the given kid from both signing rotation and
// the published JWKS. Retiring the last key is refused: the service must
// never be left unable to sign.
func (m *KeyManager) Retire(kid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.signers) <= 1 {
		return fmt.Errorf("jwtx: refusing to retire the last signing key %q", kid)
	}

	kept := m.signers[:0]
	found := false
	for _, s := range m.signers {
		if s.KID() == kid {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	if !found {
		return ErrNoKey
	}
	m.signers = kept
	m.KeySet.Remove(kid)
	return nil
}

// KIDs lists the key ids currently in signing rotation.
func (m *KeyManager) KIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kids := make([]string, len(m.signers))
	for i, s := range m.signers {
		kids[i] = s.KID()
	}
	return kids
}

func (m *KeyManager) generateKey() error {
	kid, err := randomKID()
	if err != nil {
		return err
	}

	var signer Signer
	switch m.algorithm {
	case AlgorithmRS256:
		bits := m.rsaBits
		if bits < 2048 {
			bits = 2048
		}
		key, err := cryptorsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return fmt.Errorf("jwtx: generate RSA key: %w", err)
		}
		signer, err = NewSignerRS256(kid, key)
		if err != nil {
			return err
		}

	case AlgorithmES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("jwtx: generate ECDSA key: %w", err)
		}
		signer, err = NewSignerES256(kid, key)
		if err != nil {
			return err
		}

	case AlgorithmEdDSA:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("jwtx: generate Ed25519 key: %w", err)
		}
		signer, err = NewSignerEdDSA(kid, key)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("jwtx: unsupported algorithm %q", m.algorithm)
	}

	if err := m.KeySet.AddSigner(signer); err != nil {
		return err
	}

	m.mu.Lock()
	m.signers = append(m.signers, signer)
	m.mu.Unlock()
	return nil
}

func randomKID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("jwtx: generate kid: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
