// Package ethereum implements the secp256k1 identities used across the
// node: voters and node operators sign API requests, the coprocessor signs
// input attestations and the KMS signers sign decryption results.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/vocdoni-fhe-polls/util"
)

const (
	// SignatureLength is the size of an ECDSA signature in R || S || V form.
	SignatureLength = crypto.SignatureLength
	// HashLength is the size of a keccak256 digest.
	HashLength = 32
)

// SignKeys represents an ECDSA pair of keys for signing.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty SignKeys object.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate generates new keys.
func (k *SignKeys) Generate() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private hex key.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := crypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the public compressed key and the private key as hex strings.
func (k *SignKeys) HexString() (string, string) {
	pubHexComp := hex.EncodeToString(crypto.CompressPubkey(&k.Public))
	privHex := hex.EncodeToString(crypto.FromECDSA(&k.Private))
	return pubHexComp, privHex
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	return crypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address derived from the public key.
func (k *SignKeys) Address() common.Address {
	return crypto.PubkeyToAddress(k.Public)
}

// AddressString returns the checksummed Ethereum address.
func (k *SignKeys) AddressString() string {
	return k.Address().Hex()
}

// SignEthereum signs a message with the EIP-191 personal message prefix.
// The returned signature has the recovery id in its last byte (0 or 1).
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return crypto.Sign(Hash(message), &k.Private)
}

// SignHash signs an already computed 32 bytes digest.
func (k *SignKeys) SignHash(hash []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	if len(hash) != HashLength {
		return nil, fmt.Errorf("invalid hash length %d", len(hash))
	}
	return crypto.Sign(hash, &k.Private)
}

// AddrFromPublicKey returns the address of a compressed or uncompressed
// public key.
func AddrFromPublicKey(pubKey []byte) (common.Address, error) {
	var pub *ecdsa.PublicKey
	var err error
	if len(pubKey) == 33 {
		pub, err = crypto.DecompressPubkey(pubKey)
	} else {
		pub, err = crypto.UnmarshalPubkey(pubKey)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddrFromSignature recovers the signer address of an EIP-191 signed message.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	return AddrFromHashSignature(Hash(message), signature)
}

// AddrFromHashSignature recovers the signer address of a signed digest. It
// accepts recovery ids in both the 0/1 and the 27/28 forms.
func AddrFromHashSignature(hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id %d", signature[64])
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Hash returns the EIP-191 digest of a message.
func Hash(message []byte) []byte {
	return accounts.TextHash(message)
}

// HashRaw returns the keccak256 digest of data.
func HashRaw(data []byte) []byte {
	return crypto.Keccak256(data)
}
