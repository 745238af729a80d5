package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/api"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// call performs a request and decodes a successful JSON response into out,
// which may be nil. A non 200 answer is returned as an api.Error carrying
// the code sent by the node and the HTTP status.
func (c *HTTPclient) call(method string, body, out any, params []string, endpoint string) error {
	data, status, err := c.Request(method, body, params, endpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := api.Error{}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Err == nil {
			return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
		}
		apiErr.HTTPstatus = status
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

// signedCall signs payload with keys and posts it to endpoint.
func (c *HTTPclient) signedCall(keys *ethereum.SignKeys, payload, out any, endpoint string) error {
	req, err := api.SignRequest(keys, payload)
	if err != nil {
		return err
	}
	return c.call(HTTPPOST, req, out, nil, endpoint)
}

func pollEndpoint(endpoint string, pollID uint64) string {
	return api.EndpointWithParam(endpoint, api.PollURLParam, strconv.FormatUint(pollID, 10))
}

func indexEndpoint(endpoint string, pollID uint64, idx int) string {
	return api.EndpointWithParam(pollEndpoint(endpoint, pollID), api.IndexURLParam, strconv.Itoa(idx))
}

// Info returns the node parameters.
func (c *HTTPclient) Info() (*api.Info, error) {
	info := &api.Info{}
	return info, c.call(HTTPGET, nil, info, nil, api.InfoEndpoint)
}

// CreatePoll creates a poll owned by keys and returns its ID.
func (c *HTTPclient) CreatePoll(keys *ethereum.SignKeys, p *api.NewPoll) (uint64, error) {
	resp := &api.NewPollResponse{}
	if err := c.signedCall(keys, p, resp, api.PollsEndpoint); err != nil {
		return 0, err
	}
	return resp.PollID, nil
}

// Polls returns a page of polls.
func (c *HTTPclient) Polls(offset, limit uint64) (*api.PollList, error) {
	list := &api.PollList{}
	params := []string{"offset", strconv.FormatUint(offset, 10), "limit", strconv.FormatUint(limit, 10)}
	return list, c.call(HTTPGET, nil, list, params, api.PollsEndpoint)
}

// Poll returns the metadata and status of a poll.
func (c *HTTPclient) Poll(pollID uint64) (*types.PollMeta, error) {
	meta := &types.PollMeta{}
	return meta, c.call(HTTPGET, nil, meta, nil, pollEndpoint(api.PollEndpoint, pollID))
}

// PollOption returns the label of an option.
func (c *HTTPclient) PollOption(pollID uint64, idx int) (string, error) {
	opt := &api.PollOption{}
	if err := c.call(HTTPGET, nil, opt, nil, indexEndpoint(api.PollOptionEndpoint, pollID, idx)); err != nil {
		return "", err
	}
	return opt.Label, nil
}

// EncryptedTally returns the ciphertext handle of an option tally.
func (c *HTTPclient) EncryptedTally(pollID uint64, idx int) (fhe.Handle, error) {
	t := &api.EncryptedTally{}
	if err := c.call(HTTPGET, nil, t, nil, indexEndpoint(api.EncryptedTallyEndpoint, pollID, idx)); err != nil {
		return fhe.Handle{}, err
	}
	return t.Handle, nil
}

// PostedTally returns whether the results are posted and the option count.
func (c *HTTPclient) PostedTally(pollID uint64, idx int) (bool, uint32, error) {
	t := &api.PostedTally{}
	if err := c.call(HTTPGET, nil, t, nil, indexEndpoint(api.PostedTallyEndpoint, pollID, idx)); err != nil {
		return false, 0, err
	}
	return t.Posted, t.Count, nil
}

// HasVoted tells whether voter has voted on the poll.
func (c *HTTPclient) HasVoted(pollID uint64, voter common.Address) (bool, error) {
	s := &api.VoterStatus{}
	endpoint := api.EndpointWithParam(pollEndpoint(api.VoterEndpoint, pollID), api.AddressURLParam, voter.Hex())
	if err := c.call(HTTPGET, nil, s, nil, endpoint); err != nil {
		return false, err
	}
	return s.Voted, nil
}

// Vote casts an encrypted choice signed by keys.
func (c *HTTPclient) Vote(keys *ethereum.SignKeys, v *api.Vote) error {
	return c.signedCall(keys, v, nil, pollEndpoint(api.VotesEndpoint, v.PollID))
}

// EndPoll closes an expired poll.
func (c *HTTPclient) EndPoll(keys *ethereum.SignKeys, e *api.EndPoll) error {
	return c.signedCall(keys, e, nil, pollEndpoint(api.EndPollEndpoint, e.PollID))
}

// PublishResults posts the KMS decryption of the poll tallies.
func (c *HTTPclient) PublishResults(keys *ethereum.SignKeys, p *api.PublishResults) error {
	return c.signedCall(keys, p, nil, pollEndpoint(api.ResultsEndpoint, p.PollID))
}

// EncryptInput asks the node relayer to encrypt a choice for user.
func (c *HTTPclient) EncryptInput(user common.Address, choice uint64, bound uint8) (*api.EncryptedInput, error) {
	in := &api.EncryptedInput{}
	req := &api.EncryptInput{User: user, Choice: choice, Bound: bound}
	return in, c.call(HTTPPOST, req, in, nil, api.RelayerInputsEndpoint)
}

// PublicDecrypt asks the node relayer for the decryption of handles.
func (c *HTTPclient) PublicDecrypt(handles []fhe.Handle) (*kms.Decryption, error) {
	d := &kms.Decryption{}
	return d, c.call(HTTPPOST, &api.PublicDecrypt{Handles: handles}, d, nil, api.RelayerDecryptEndpoint)
}
