package api

import (
	"net/http"

	"github.com/vocdoni/vocdoni-fhe-polls/log"
)

// DefaultPollsLimit is the page size of the poll list when none is given.
const DefaultPollsLimit = 20

// nodeInfo returns the node parameters
// GET /info
func (a *API) nodeInfo(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, a.info)
}

// newPoll creates a new poll owned by the signer of the request
// POST /polls
func (a *API) newPoll(w http.ResponseWriter, r *http.Request) {
	p := &NewPoll{}
	creator, apiErr := a.decodeSigned(r, p)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	id, err := a.engine.CreatePoll(r.Context(), creator, p.Name, p.Options, p.StartTime, p.EndTime)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	log.Infow("new poll", "pollId", id, "creator", creator.Hex())
	httpWriteJSON(w, &NewPollResponse{PollID: id})
}

// polls returns a page of polls
// GET /polls?offset=0&limit=20
func (a *API) polls(w http.ResponseWriter, r *http.Request) {
	offset, apiErr := uintQuery(r, "offset", 0)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	limit, apiErr := uintQuery(r, "limit", DefaultPollsLimit)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	count, err := a.engine.PollCount()
	if err != nil {
		engineError(err).Write(w)
		return
	}
	polls, err := a.engine.Polls(offset, limit)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &PollList{Count: count, Polls: polls})
}

// poll returns the metadata and status of a poll
// GET /polls/{pollId}
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	meta, err := a.engine.PollMeta(id)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, meta)
}

// pollOption returns the label of an option
// GET /polls/{pollId}/options/{idx}
func (a *API) pollOption(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	idx, apiErr := indexParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	label, err := a.engine.PollOption(id, idx)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &PollOption{Index: idx, Label: label})
}

// encryptedTally returns the ciphertext handle of an option tally
// GET /polls/{pollId}/tallies/{idx}/encrypted
func (a *API) encryptedTally(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	idx, apiErr := indexParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	h, err := a.engine.EncryptedTally(id, idx)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &EncryptedTally{Index: idx, Handle: h})
}

// postedTally returns the verified cleartext count of an option
// GET /polls/{pollId}/tallies/{idx}
func (a *API) postedTally(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	idx, apiErr := indexParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	posted, count, err := a.engine.PostedTally(id, idx)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &PostedTally{Index: idx, Posted: posted, Count: count})
}

// voterStatus tells whether an address has voted
// GET /polls/{pollId}/voters/{address}
func (a *API) voterStatus(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pollIDParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voter, apiErr := addressParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voted, err := a.engine.HasVoted(id, voter)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoterStatus{Address: voter, Voted: voted})
}
