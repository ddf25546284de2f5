package codec

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
)

// ErrInvalidKey indicates a private key that is not 32 bytes of hex or is zero.
var ErrInvalidKey = errors.New("invalid private key")

// Signer is an identity capable of signing events.
type Signer interface {
	// PublicKey returns the x-only public key as lowercase hex.
	PublicKey() string

	// SignEvent fills pubkey, id and sig for the unsigned event.
	SignEvent(u UnsignedEvent) (Event, error)
}

// KeySigner signs with an in-memory secp256k1 private key.
type KeySigner struct {
	sk  *btcec.PrivateKey
	pub string
}

// Compile-time interface check.
var _ Signer = (*KeySigner)(nil)

// NewKeySigner parses a hex private key.
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	sk, pk := btcec.PrivKeyFromBytes(raw)
	if sk.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	return &KeySigner{
		sk:  sk,
		pub: hex.EncodeToString(schnorr.SerializePubKey(pk)),
	}, nil
}

// PublicKey implements Signer.
func (s *KeySigner) PublicKey() string {
	return s.pub
}

// SignEvent implements Signer.
func (s *KeySigner) SignEvent(u UnsignedEvent) (Event, error) {
	created := u.CreatedAt
	if created == 0 {
		created = nostr.Now()
	}
	tags := u.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}

	ev := Event{
		PubKey:    s.pub,
		CreatedAt: created,
		Kind:      u.Kind,
		Tags:      tags,
		Content:   u.Content,
	}
	ev.ID = Hash(ev)

	id, err := hex.DecodeString(ev.ID)
	if err != nil {
		return Event{}, fmt.Errorf("decode id: %w", err)
	}
	sig, err := schnorr.Sign(s.sk, id)
	if err != nil {
		return Event{}, fmt.Errorf("sign event: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev, nil
}

// Sign signs u with the given hex private key.
func Sign(u UnsignedEvent, privateKeyHex string) (Event, error) {
	s, err := NewKeySigner(privateKeyHex)
	if err != nil {
		return Event{}, err
	}
	return s.SignEvent(u)
}

// GeneratePrivateKey returns a fresh random private key as hex.
func GeneratePrivateKey() (string, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(sk.Serialize()), nil
}

// PublicKey derives the x-only public key for a hex private key.
func PublicKey(privateKeyHex string) (string, error) {
	s, err := NewKeySigner(privateKeyHex)
	if err != nil {
		return "", err
	}
	return s.PublicKey(), nil
}
