package api

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// SignedRequest wraps the JSON payload of every write request. Signature
// is an EIP-191 signature over the payload bytes as sent, and the address
// it recovers to is the caller of the operation.
type SignedRequest struct {
	Payload   json.RawMessage `json:"payload"`
	Signature types.HexBytes  `json:"signature"`
}

// SignRequest marshals payload and signs it with keys.
func SignRequest(keys *ethereum.SignKeys, payload any) (*SignedRequest, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal payload: %w", err)
	}
	signature, err := keys.SignEthereum(data)
	if err != nil {
		return nil, err
	}
	return &SignedRequest{Payload: data, Signature: signature}, nil
}

// Caller recovers the address that signed the payload.
func (r *SignedRequest) Caller() (common.Address, error) {
	return ethereum.AddrFromSignature(r.Payload, r.Signature)
}

// Info describes the node: chain, engine identity and KMS parameters.
type Info struct {
	ChainID           uint64           `json:"chainId"`
	EngineAddress     common.Address   `json:"engineAddress"`
	ProtocolID        uint64           `json:"protocolId"`
	KMSSigners        []common.Address `json:"kmsSigners"`
	KMSThreshold      int              `json:"kmsThreshold"`
	DecryptionAddress common.Address   `json:"decryptionAddress"`
	Relayer           bool             `json:"relayer"`
}

// NewPoll is the signed payload of a poll creation request.
type NewPoll struct {
	ChainID   uint64   `json:"chainId"`
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	StartTime uint64   `json:"startTime"`
	EndTime   uint64   `json:"endTime"`
}

// NewPollResponse is the response to a poll creation request.
type NewPollResponse struct {
	PollID uint64 `json:"pollId"`
}

// PollList is a page of polls plus the total number of polls.
type PollList struct {
	Count uint64            `json:"count"`
	Polls []*types.PollMeta `json:"polls"`
}

// PollOption is an option label.
type PollOption struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// EncryptedTally is the ciphertext handle of an option tally.
type EncryptedTally struct {
	Index  int        `json:"index"`
	Handle fhe.Handle `json:"handle"`
}

// PostedTally is the verified cleartext count of an option. Count is
// meaningless while Posted is false.
type PostedTally struct {
	Index  int    `json:"index"`
	Posted bool   `json:"posted"`
	Count  uint32 `json:"count"`
}

// VoterStatus tells whether an address has voted on a poll.
type VoterStatus struct {
	Address common.Address `json:"address"`
	Voted   bool           `json:"voted"`
}

// Vote is the signed payload of a vote. Choice is a handle produced by the
// coprocessor for the signer and the engine address, InputProof attests it.
type Vote struct {
	ChainID    uint64         `json:"chainId"`
	PollID     uint64         `json:"pollId"`
	Choice     fhe.Handle     `json:"choice"`
	InputProof types.HexBytes `json:"inputProof"`
}

// EndPoll is the signed payload of a request to close a poll.
type EndPoll struct {
	ChainID uint64 `json:"chainId"`
	PollID  uint64 `json:"pollId"`
}

// PublishResults is the signed payload carrying the KMS decryption of the
// poll tallies.
type PublishResults struct {
	ChainID         uint64         `json:"chainId"`
	PollID          uint64         `json:"pollId"`
	Cleartexts      types.HexBytes `json:"cleartexts"`
	DecryptionProof types.HexBytes `json:"decryptionProof"`
}

// EncryptInput asks the relayer to encrypt a choice for user. Bound is the
// number of options of the target poll.
type EncryptInput struct {
	User   common.Address `json:"user"`
	Choice uint64         `json:"choice"`
	Bound  uint8          `json:"bound"`
}

// EncryptedInput is a choice handle plus its input proof.
type EncryptedInput struct {
	Handle     fhe.Handle     `json:"handle"`
	InputProof types.HexBytes `json:"inputProof"`
}

// PublicDecrypt asks the relayer for the public decryption of handles.
type PublicDecrypt struct {
	Handles []fhe.Handle `json:"handles"`
}
