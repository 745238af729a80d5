package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
)

// signedPollRequest decodes a signed payload addressed to the poll of the
// request URL and returns its signer.
func (a *API) signedPollRequest(r *http.Request, payload interface{ chainID() uint64 },
	payloadPollID func() uint64,
) (uint64, common.Address, *Error) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		return 0, common.Address{}, apiErr
	}
	caller, apiErr := a.decodeSigned(r, payload)
	if apiErr != nil {
		return 0, common.Address{}, apiErr
	}
	if got := payloadPollID(); got != id {
		e := ErrPollIDMismatch.Withf("payload is for poll %d", got)
		return 0, common.Address{}, &e
	}
	return id, caller, nil
}

// newVote casts the encrypted vote of the signer
// POST /polls/{pollId}/votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	v := &Vote{}
	id, voter, apiErr := a.signedPollRequest(r, v, func() uint64 { return v.PollID })
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.engine.Vote(r.Context(), voter, id, v.Choice, v.InputProof); err != nil {
		engineError(err).Write(w)
		return
	}
	log.Debugw("vote received", "pollId", id, "voter", voter.Hex())
	httpWriteOK(w)
}

// endPoll closes an expired poll
// POST /polls/{pollId}/end
func (a *API) endPoll(w http.ResponseWriter, r *http.Request) {
	e := &EndPoll{}
	id, caller, apiErr := a.signedPollRequest(r, e, func() uint64 { return e.PollID })
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.engine.EndPoll(r.Context(), caller, id); err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// publishResults verifies and stores the decrypted tallies
// POST /polls/{pollId}/results
func (a *API) publishResults(w http.ResponseWriter, r *http.Request) {
	p := &PublishResults{}
	id, caller, apiErr := a.signedPollRequest(r, p, func() uint64 { return p.PollID })
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	if err := a.engine.PublishResults(r.Context(), caller, id, p.Cleartexts, p.DecryptionProof); err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteOK(w)
}
