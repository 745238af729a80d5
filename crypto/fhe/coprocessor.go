package fhe

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/fxamacker/cbor/v2"
	paillier "github.com/roasbeef/go-go-gadget-paillier"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	ciphertextPrefix = []byte("c/")
	aclPrefix        = []byte("d/")
	keysPrefix       = []byte("k/")

	paillierKeyName = []byte("paillier")
	signerKeyName   = []byte("signer")
)

const (
	// DefaultKeyBits is the Paillier modulus size used when none is given.
	DefaultKeyBits = 2048

	inputVerificationName    = "InputVerification"
	inputVerificationVersion = "1"

	signatureSize = ethereum.SignatureLength
)

// ciphertextVerificationType is the EIP-712 struct signed by the
// coprocessor to attest an encrypted input.
var ciphertextVerificationType = []apitypes.Type{
	{Name: "ctHandles", Type: "bytes32[]"},
	{Name: "userAddress", Type: "address"},
	{Name: "contractAddress", Type: "address"},
	{Name: "contractChainId", Type: "uint256"},
	{Name: "extraData", Type: "bytes"},
}

// CoprocessorConfig holds the coprocessor parameters.
type CoprocessorConfig struct {
	ChainID    uint64
	ProtocolID uint64
	// KeyBits is the Paillier modulus size for a freshly generated key.
	KeyBits int
	// SignerKey is the hex private key of the input attestation signer. If
	// empty, a stored key is used or a new one is generated.
	SignerKey string
	// InputVerifier is the verifying contract of the input attestations.
	// Defaults to the signer address.
	InputVerifier common.Address
}

type ciphertext struct {
	Type Type   `cbor:"0,keyasint"`
	Data []byte `cbor:"1,keyasint"`
}

// Coprocessor is a local Executor. Ciphertexts are Paillier ciphertexts
// stored by handle, so additions are homomorphic while comparisons and
// selections are evaluated with the coprocessor key, which never leaves it.
type Coprocessor struct {
	db            db.Database
	chainID       uint64
	protocolID    uint64
	key           *paillier.PrivateKey
	signer        *ethereum.SignKeys
	inputVerifier common.Address
}

var _ Executor = (*Coprocessor)(nil)

// NewCoprocessor opens a coprocessor over database. Key material is loaded
// from the database or generated and persisted on first use.
func NewCoprocessor(database db.Database, conf CoprocessorConfig) (*Coprocessor, error) {
	if conf.KeyBits == 0 {
		conf.KeyBits = DefaultKeyBits
	}
	c := &Coprocessor{
		db:         database,
		chainID:    conf.ChainID,
		protocolID: conf.ProtocolID,
	}
	var err error
	if c.key, err = c.loadOrCreatePaillierKey(conf.KeyBits); err != nil {
		return nil, err
	}
	if c.signer, err = c.loadOrCreateSigner(conf.SignerKey); err != nil {
		return nil, err
	}
	c.inputVerifier = conf.InputVerifier
	if c.inputVerifier == (common.Address{}) {
		c.inputVerifier = c.signer.Address()
	}
	log.Infow("coprocessor ready",
		"chainId", c.chainID,
		"protocolId", c.protocolID,
		"signer", c.signer.AddressString(),
		"keyBits", c.key.N.BitLen())
	return c, nil
}

func (c *Coprocessor) loadOrCreatePaillierKey(bits int) (*paillier.PrivateKey, error) {
	data, err := prefixeddb.NewPrefixedReader(c.db, keysPrefix).Get(paillierKeyName)
	if err == nil {
		pk := &paillierKey{}
		if err := cbor.Unmarshal(data, pk); err != nil {
			return nil, fmt.Errorf("cannot decode paillier key: %w", err)
		}
		return pk.privateKey()
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("cannot read paillier key: %w", err)
	}
	pk, err := generatePaillierPrimes(bits)
	if err != nil {
		return nil, fmt.Errorf("cannot generate paillier key: %w", err)
	}
	key, err := pk.privateKey()
	if err != nil {
		return nil, err
	}
	if data, err = encode(pk); err != nil {
		return nil, err
	}
	if err := c.setKey(paillierKeyName, data); err != nil {
		return nil, err
	}
	return key, nil
}

func (c *Coprocessor) loadOrCreateSigner(hexKey string) (*ethereum.SignKeys, error) {
	signer := ethereum.NewSignKeys()
	if hexKey != "" {
		if err := signer.AddHexKey(hexKey); err != nil {
			return nil, fmt.Errorf("invalid coprocessor signer key: %w", err)
		}
		return signer, nil
	}
	data, err := prefixeddb.NewPrefixedReader(c.db, keysPrefix).Get(signerKeyName)
	if err == nil {
		if err := signer.AddHexKey(string(data)); err != nil {
			return nil, fmt.Errorf("invalid stored signer key: %w", err)
		}
		return signer, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("cannot read signer key: %w", err)
	}
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	_, priv := signer.HexString()
	if err := c.setKey(signerKeyName, []byte(priv)); err != nil {
		return nil, err
	}
	return signer, nil
}

func (c *Coprocessor) setKey(name, value []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), keysPrefix)
	if err := wTx.Set(name, value); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// ProtocolID implements Executor.
func (c *Coprocessor) ProtocolID() uint64 {
	return c.protocolID
}

// ChainID returns the chain id embedded in every handle.
func (c *Coprocessor) ChainID() uint64 {
	return c.chainID
}

// Signer returns the address attesting encrypted inputs.
func (c *Coprocessor) Signer() common.Address {
	return c.signer.Address()
}

// TrivialEncrypt implements Executor.
func (c *Coprocessor) TrivialEncrypt(value uint64, t Type) (Handle, error) {
	if !t.Valid() {
		return Handle{}, fmt.Errorf("%w: %s", ErrTypeMismatch, t)
	}
	ct, err := c.encrypt(value)
	if err != nil {
		return Handle{}, err
	}
	return c.storeComputed(opTrivialEncrypt, t, ct)
}

// Eq implements Executor.
func (c *Coprocessor) Eq(a Handle, plain uint64) (Handle, error) {
	va, err := c.value(a)
	if err != nil {
		return Handle{}, err
	}
	var res uint64
	if va == plain {
		res = 1
	}
	ct, err := c.encrypt(res)
	if err != nil {
		return Handle{}, err
	}
	return c.storeComputed(opEq, TypeBool, ct, a)
}

// Add implements Executor.
func (c *Coprocessor) Add(a, b Handle) (Handle, error) {
	if a.Type() != b.Type() {
		return Handle{}, fmt.Errorf("%w: add %s to %s", ErrTypeMismatch, b.Type(), a.Type())
	}
	cta, err := c.load(a)
	if err != nil {
		return Handle{}, err
	}
	ctb, err := c.load(b)
	if err != nil {
		return Handle{}, err
	}
	sum := paillier.AddCipher(&c.key.PublicKey, cta.Data, ctb.Data)
	return c.storeComputed(opAdd, a.Type(), sum, a, b)
}

// Select implements Executor.
func (c *Coprocessor) Select(cond, a, b Handle) (Handle, error) {
	if cond.Type() != TypeBool {
		return Handle{}, fmt.Errorf("%w: condition is %s", ErrTypeMismatch, cond.Type())
	}
	if a.Type() != b.Type() {
		return Handle{}, fmt.Errorf("%w: select %s or %s", ErrTypeMismatch, a.Type(), b.Type())
	}
	vc, err := c.value(cond)
	if err != nil {
		return Handle{}, err
	}
	picked := b
	if vc == 1 {
		picked = a
	}
	ct, err := c.load(picked)
	if err != nil {
		return Handle{}, err
	}
	// adding a fresh encryption of zero hides which branch was taken
	zero, err := c.encrypt(0)
	if err != nil {
		return Handle{}, err
	}
	res := paillier.AddCipher(&c.key.PublicKey, ct.Data, zero)
	return c.storeComputed(opSelect, a.Type(), res, cond, a, b)
}

// EncryptInput encrypts value for user to submit to contract and returns
// the handle together with the input proof. The proof attests that value is
// lower than bound.
func (c *Coprocessor) EncryptInput(contract, user common.Address, value uint64, bound uint8) (Handle, []byte, error) {
	if bound == 0 || value >= uint64(bound) {
		return Handle{}, nil, fmt.Errorf("%w: %d not below %d", ErrInvalidOptionIndex, value, bound)
	}
	data, err := c.encrypt(value)
	if err != nil {
		return Handle{}, nil, err
	}
	seed := append(append(append([]byte{}, data...), contract.Bytes()...), user.Bytes()...)
	h := NewHandle(seed, 0, c.chainID, TypeUint8)
	if err := c.store(h, &ciphertext{Type: TypeUint8, Data: data}); err != nil {
		return Handle{}, nil, err
	}
	extraData := []byte{HandleVersion, bound}
	sig, err := c.signer.SignTypedData(c.inputTypedData([]Handle{h}, user, contract, extraData))
	if err != nil {
		return Handle{}, nil, fmt.Errorf("cannot sign input: %w", err)
	}
	proof := make([]byte, 0, 1+signatureSize+len(extraData))
	proof = append(proof, 1)
	proof = append(proof, sig...)
	proof = append(proof, extraData...)
	return h, proof, nil
}

// VerifyInput implements Executor. The proof layout is
// [signers count][signatures][version, bound].
func (c *Coprocessor) VerifyInput(h Handle, proof []byte, user, contract common.Address) (*Input, error) {
	if h.Version() != HandleVersion {
		return nil, fmt.Errorf("%w: handle version %d", ErrProtocolUnsupported, h.Version())
	}
	if !h.Type().Valid() {
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidHandle, h.Type())
	}
	if h.ChainID() != c.chainID {
		return nil, fmt.Errorf("%w: handle for chain %d", ErrInvalidInputProof, h.ChainID())
	}
	if len(proof) < 1 {
		return nil, fmt.Errorf("%w: empty proof", ErrInvalidInputProof)
	}
	n := int(proof[0])
	if n == 0 || len(proof) < 1+n*signatureSize {
		return nil, fmt.Errorf("%w: truncated proof", ErrInvalidInputProof)
	}
	extraData := proof[1+n*signatureSize:]
	if len(extraData) != 2 {
		return nil, fmt.Errorf("%w: extra data of %d bytes", ErrInvalidInputProof, len(extraData))
	}
	if extraData[0] != HandleVersion {
		return nil, fmt.Errorf("%w: proof version %d", ErrProtocolUnsupported, extraData[0])
	}
	td := c.inputTypedData([]Handle{h}, user, contract, extraData)
	signed := false
	for i := 0; i < n; i++ {
		sig := proof[1+i*signatureSize : 1+(i+1)*signatureSize]
		addr, err := ethereum.AddrFromTypedDataSignature(td, sig)
		if err == nil && addr == c.signer.Address() {
			signed = true
			break
		}
	}
	if !signed {
		return nil, fmt.Errorf("%w: no valid coprocessor signature", ErrInvalidInputProof)
	}
	if _, err := c.load(h); err != nil {
		return nil, err
	}
	return &Input{Handle: h, Bound: extraData[1]}, nil
}

func (c *Coprocessor) inputTypedData(handles []Handle, user, contract common.Address, extraData []byte) apitypes.TypedData {
	domain := ethereum.Domain(inputVerificationName, inputVerificationVersion, c.chainID, c.inputVerifier)
	return ethereum.TypedData(domain, "CiphertextVerification", ciphertextVerificationType, apitypes.TypedDataMessage{
		"ctHandles":       Handles(handles),
		"userAddress":     user.Hex(),
		"contractAddress": contract.Hex(),
		"contractChainId": new(big.Int).SetUint64(c.chainID),
		"extraData":       extraData,
	})
}

// MakePubliclyDecryptable implements Executor. All handles are granted in
// a single transaction.
func (c *Coprocessor) MakePubliclyDecryptable(handles ...Handle) error {
	for _, h := range handles {
		if _, err := c.load(h); err != nil {
			return err
		}
	}
	wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), aclPrefix)
	for _, h := range handles {
		if err := wTx.Set(h.Bytes(), []byte{1}); err != nil {
			wTx.Discard()
			return err
		}
	}
	return wTx.Commit()
}

// IsPubliclyDecryptable reports whether h was granted public decryption.
func (c *Coprocessor) IsPubliclyDecryptable(h Handle) bool {
	_, err := prefixeddb.NewPrefixedReader(c.db, aclPrefix).Get(h.Bytes())
	return err == nil
}

// Decrypt returns the cleartext of a publicly decryptable handle.
func (c *Coprocessor) Decrypt(h Handle) (uint64, error) {
	if !c.IsPubliclyDecryptable(h) {
		return 0, fmt.Errorf("%w: %s", ErrNotDecryptable, h)
	}
	return c.value(h)
}

func (c *Coprocessor) encrypt(value uint64) ([]byte, error) {
	ct, err := paillier.Encrypt(&c.key.PublicKey, new(big.Int).SetUint64(value).Bytes())
	if err != nil {
		return nil, fmt.Errorf("cannot encrypt: %w", err)
	}
	return ct, nil
}

// value decrypts the ciphertext behind h, reduced to the width of its type.
func (c *Coprocessor) value(h Handle) (uint64, error) {
	ct, err := c.load(h)
	if err != nil {
		return 0, err
	}
	plain, err := paillier.Decrypt(c.key, ct.Data)
	if err != nil {
		return 0, fmt.Errorf("cannot decrypt %s: %w", h, err)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), ct.Type.Bits())
	return new(big.Int).Mod(new(big.Int).SetBytes(plain), mod).Uint64(), nil
}

func (c *Coprocessor) load(h Handle) (*ciphertext, error) {
	data, err := prefixeddb.NewPrefixedReader(c.db, ciphertextPrefix).Get(h.Bytes())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCiphertextNotFound, h)
		}
		return nil, err
	}
	ct := &ciphertext{}
	if err := cbor.Unmarshal(data, ct); err != nil {
		return nil, fmt.Errorf("cannot decode ciphertext: %w", err)
	}
	if ct.Type != h.Type() {
		return nil, fmt.Errorf("%w: stored %s for a %s handle", ErrTypeMismatch, ct.Type, h.Type())
	}
	return ct, nil
}

func (c *Coprocessor) store(h Handle, ct *ciphertext) error {
	data, err := encode(ct)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), ciphertextPrefix)
	if err := wTx.Set(h.Bytes(), data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

type operation byte

const (
	opTrivialEncrypt operation = iota + 1
	opEq
	opAdd
	opSelect
)

// storeComputed persists the result of op and returns its handle. The handle
// digest binds the operation, its operands and the resulting ciphertext.
func (c *Coprocessor) storeComputed(op operation, t Type, data []byte, operands ...Handle) (Handle, error) {
	seed := []byte{byte(op)}
	for _, o := range operands {
		seed = append(seed, o.Bytes()...)
	}
	seed = append(seed, data...)
	h := NewHandle(seed, computedIndex, c.chainID, t)
	if err := c.store(h, &ciphertext{Type: t, Data: data}); err != nil {
		return Handle{}, err
	}
	return h, nil
}

func encode(v any) ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return em.Marshal(v)
}
