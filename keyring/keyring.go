// Package keyring derives the sequencer's signing keys from a single
// wallet seed using BIP32 HD derivation, so a sequencer never needs to
// generate or store per-blob keys directly.
package keyring

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyFamily groups related keys under a single derivation branch, e.g.
// "blob signing keys" vs. "commit funding keys".
type KeyFamily uint32

const (
	// KeyFamilyBlobSigning derives the ECDSA keys a sequencer signs
	// blob bodies with.
	KeyFamilyBlobSigning KeyFamily = 0

	// KeyFamilyCommitFunding derives the per-inscription keys that
	// NextCommitKey hands out as the commit/reveal taproot internal key.
	KeyFamilyCommitFunding KeyFamily = 1
)

const (
	// SequencerPurpose is this adapter's BIP43 purpose field. It is
	// distinct from BIP-86's 86 and from Taproot Assets' 1017 so a
	// sequencer wallet never collides with either derivation scheme
	// under a shared seed.
	SequencerPurpose = 350

	// DefaultCoinType is Bitcoin (0).
	DefaultCoinType = 0
)

// KeyDescriptor locates a derived key and carries its public half.
type KeyDescriptor struct {
	Family KeyFamily
	Index  uint32
	PubKey *btcec.PublicKey
}

// Config configures a KeyRing.
type Config struct {
	NetParams *chaincfg.Params
	Seed      []byte
	Purpose   uint32
	CoinType  uint32

	// Store persists per-family derivation indexes across restarts. A
	// nil Store keeps indexes in memory only.
	Store KeyStateStore
}

// DefaultConfig returns a Config using this adapter's purpose and coin
// type.
func DefaultConfig(seed []byte, params *chaincfg.Params) *Config {
	return &Config{
		NetParams: params,
		Seed:      seed,
		Purpose:   SequencerPurpose,
		CoinType:  DefaultCoinType,
	}
}

// KeyRing derives sequencer keys along m/purpose'/coin_type'/family'/0/index.
type KeyRing struct {
	cfg *Config

	masterKey *hdkeychain.ExtendedKey

	familyIndexes map[KeyFamily]uint32
	derivedKeys   map[KeyDescriptor]*btcec.PrivateKey

	mu sync.RWMutex
}

// New builds a KeyRing from a seed.
func New(cfg *Config) (*KeyRing, error) {
	if cfg == nil {
		return nil, fmt.Errorf("keyring: config is required")
	}
	if len(cfg.Seed) == 0 {
		return nil, fmt.Errorf("keyring: seed is required")
	}
	if cfg.NetParams == nil {
		return nil, fmt.Errorf("keyring: network params required")
	}

	masterKey, err := hdkeychain.NewMaster(cfg.Seed, cfg.NetParams)
	if err != nil {
		return nil, fmt.Errorf("keyring: create master key: %w", err)
	}

	kr := &KeyRing{
		cfg:           cfg,
		masterKey:     masterKey,
		familyIndexes: make(map[KeyFamily]uint32),
		derivedKeys:   make(map[KeyDescriptor]*btcec.PrivateKey),
	}

	if cfg.Store != nil {
		indexes, err := cfg.Store.GetAllIndexes()
		if err != nil {
			return nil, fmt.Errorf("keyring: load key indexes: %w", err)
		}
		kr.familyIndexes = indexes
	}

	return kr, nil
}

// SequencerKey returns the current signing key a sequencer uses to
// produce the envelope's ECDSA signature over a compressed blob body. It
// derives index 0 of KeyFamilyBlobSigning on first use and returns the
// same key on every subsequent call.
func (kr *KeyRing) SequencerKey(ctx context.Context) (*btcec.PrivateKey, error) {
	kr.mu.RLock()
	_, exists := kr.familyIndexes[KeyFamilyBlobSigning]
	kr.mu.RUnlock()

	if exists {
		return kr.PrivateKeyFor(KeyDescriptor{Family: KeyFamilyBlobSigning, Index: 0})
	}

	desc, err := kr.DeriveNextKey(KeyFamilyBlobSigning)
	if err != nil {
		return nil, fmt.Errorf("keyring: sequencer key: %w", err)
	}
	return kr.PrivateKeyFor(desc)
}

// NextCommitKey derives a fresh ephemeral key pair for a single
// inscription's commit/reveal taproot internal key, from
// KeyFamilyCommitFunding. Deriving from the wallet seed rather than
// calling btcec.NewPrivateKey directly lets a test seed the keyring and
// reproduce a build deterministically.
func (kr *KeyRing) NextCommitKey(ctx context.Context) (*btcec.PrivateKey, error) {
	desc, err := kr.DeriveNextKey(KeyFamilyCommitFunding)
	if err != nil {
		return nil, fmt.Errorf("keyring: next commit key: %w", err)
	}
	return kr.PrivateKeyFor(desc)
}

// DeriveNextKey derives the next unused key in a family.
func (kr *KeyRing) DeriveNextKey(family KeyFamily) (KeyDescriptor, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	index := kr.familyIndexes[family]

	key, err := kr.deriveKeyAtPath(kr.cfg.Purpose, kr.cfg.CoinType, uint32(family), 0, index)
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("keyring: derive key: %w", err)
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("keyring: private key: %w", err)
	}
	pubKey, err := key.ECPubKey()
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("keyring: public key: %w", err)
	}

	desc := KeyDescriptor{Family: family, Index: index, PubKey: pubKey}
	kr.derivedKeys[desc] = privKey
	kr.familyIndexes[family] = index + 1

	if kr.cfg.Store != nil {
		if err := kr.cfg.Store.SetCurrentIndex(family, index+1); err != nil {
			return KeyDescriptor{}, fmt.Errorf("keyring: persist index: %w", err)
		}
	}

	return desc, nil
}

// PrivateKeyFor returns the cached private key for a previously derived
// descriptor, re-deriving it from the seed if it isn't cached.
func (kr *KeyRing) PrivateKeyFor(desc KeyDescriptor) (*btcec.PrivateKey, error) {
	kr.mu.RLock()
	if priv, ok := kr.derivedKeys[desc]; ok {
		kr.mu.RUnlock()
		return priv, nil
	}
	kr.mu.RUnlock()

	key, err := kr.deriveKeyAtPath(kr.cfg.Purpose, kr.cfg.CoinType, uint32(desc.Family), 0, desc.Index)
	if err != nil {
		return nil, fmt.Errorf("keyring: re-derive key: %w", err)
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("keyring: private key: %w", err)
	}

	kr.mu.Lock()
	kr.derivedKeys[desc] = priv
	kr.mu.Unlock()

	return priv, nil
}

// IsLocalKey reports whether a descriptor's public key is actually
// derivable from this wallet's seed at the claimed location.
func (kr *KeyRing) IsLocalKey(desc KeyDescriptor) bool {
	if desc.PubKey == nil {
		return false
	}

	priv, err := kr.PrivateKeyFor(desc)
	if err != nil {
		return false
	}

	return priv.PubKey().IsEqual(desc.PubKey)
}

func (kr *KeyRing) deriveKeyAtPath(purpose, coinType, family, branch, index uint32) (*hdkeychain.ExtendedKey, error) {
	key := kr.masterKey

	for _, childIndex := range []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + family,
		branch,
		index,
	} {
		var err error
		key, err = key.Derive(childIndex)
		if err != nil {
			return nil, err
		}
	}

	return key, nil
}
