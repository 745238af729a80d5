package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// eip712DomainType is the type descriptor of every domain built by Domain.
var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Domain builds an EIP-712 domain separator definition.
func Domain(name, version string, chainID uint64, verifyingContract common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainID)),
		VerifyingContract: verifyingContract.Hex(),
	}
}

// TypedData assembles a typed data payload with a single primary type.
func TypedData(domain apitypes.TypedDataDomain, primaryType string, fields []apitypes.Type,
	message apitypes.TypedDataMessage,
) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}
}

// TypedDataHash returns the EIP-712 digest to be signed.
func TypedDataHash(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("cannot hash typed data: %w", err)
	}
	return hash, nil
}

// SignTypedData signs an EIP-712 payload.
func (k *SignKeys) SignTypedData(td apitypes.TypedData) ([]byte, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return k.SignHash(hash)
}

// AddrFromTypedDataSignature recovers the signer of an EIP-712 payload.
func AddrFromTypedDataSignature(td apitypes.TypedData, signature []byte) (common.Address, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return common.Address{}, err
	}
	return AddrFromHashSignature(hash, signature)
}
