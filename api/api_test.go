package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

const testChainID = 31337

var (
	testEngineAddress     = common.HexToAddress("0xe000000000000000000000000000000000000001")
	testDecryptionAddress = common.HexToAddress("0xd000000000000000000000000000000000000001")
)

type testNode struct {
	api    *API
	cp     *fhe.Coprocessor
	oracle *kms.Oracle
	clock  *poll.ManualClock
}

func newTestNode(c *qt.C) *testNode {
	database := memdb.New()
	cp, err := fhe.NewCoprocessor(database, fhe.CoprocessorConfig{
		ChainID:    testChainID,
		ProtocolID: 1,
		KeyBits:    512,
	})
	c.Assert(err, qt.IsNil)
	signers, err := kms.GenerateSigners(3)
	c.Assert(err, qt.IsNil)
	oracle := kms.NewOracle(cp, signers, testChainID, testDecryptionAddress)
	verifier, err := kms.NewThresholdVerifier(oracle.Addresses(), 2, testChainID, testDecryptionAddress)
	c.Assert(err, qt.IsNil)
	clock := poll.NewManualClock(time.Unix(1_700_000_000, 0))
	engine, err := poll.New(storage.New(database), cp, verifier, &poll.Config{
		Address:    testEngineAddress,
		ProtocolID: 1,
		Clock:      clock,
	})
	c.Assert(err, qt.IsNil)
	a, err := newAPI(&APIConfig{
		Engine:            engine,
		ChainID:           testChainID,
		KMSSigners:        oracle.Addresses(),
		KMSThreshold:      2,
		DecryptionAddress: testDecryptionAddress,
		Inputs:            cp,
		Decrypter:         oracle,
	})
	c.Assert(err, qt.IsNil)
	return &testNode{api: a, cp: cp, oracle: oracle, clock: clock}
}

func newKeys(c *qt.C) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	c.Assert(k.Generate(), qt.IsNil)
	return k
}

func (n *testNode) request(c *qt.C, method, endpoint string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		c.Assert(err, qt.IsNil)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, endpoint, reader)
	rec := httptest.NewRecorder()
	n.api.Router().ServeHTTP(rec, req)
	return rec
}

func (n *testNode) signed(c *qt.C, keys *ethereum.SignKeys, endpoint string, payload any) *httptest.ResponseRecorder {
	req, err := SignRequest(keys, payload)
	c.Assert(err, qt.IsNil)
	return n.request(c, http.MethodPost, endpoint, req)
}

func (n *testNode) now() uint64 {
	return types.Unix(n.clock.Now())
}

func (n *testNode) createPoll(c *qt.C, keys *ethereum.SignKeys, options ...string) uint64 {
	rec := n.signed(c, keys, PollsEndpoint, &NewPoll{
		ChainID:   testChainID,
		Name:      "api poll",
		Options:   options,
		StartTime: n.now() - 10,
		EndTime:   n.now() + 100,
	})
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body))
	resp := &NewPollResponse{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), resp), qt.IsNil)
	return resp.PollID
}

func (n *testNode) vote(c *qt.C, keys *ethereum.SignKeys, pollID, choice uint64, bound uint8) *httptest.ResponseRecorder {
	h, proof, err := n.cp.EncryptInput(testEngineAddress, keys.Address(), choice, bound)
	c.Assert(err, qt.IsNil)
	return n.signed(c, keys, pollPath(VotesEndpoint, pollID), &Vote{
		ChainID:    testChainID,
		PollID:     pollID,
		Choice:     h,
		InputProof: proof,
	})
}

func pollPath(endpoint string, pollID uint64) string {
	return EndpointWithParam(endpoint, PollURLParam, strconv.FormatUint(pollID, 10))
}

func indexPath(endpoint string, pollID uint64, idx int) string {
	return EndpointWithParam(pollPath(endpoint, pollID), IndexURLParam, strconv.Itoa(idx))
}

// assertError checks the status and code of an error response.
func assertError(c *qt.C, rec *httptest.ResponseRecorder, want Error) {
	c.Helper()
	c.Assert(rec.Code, qt.Equals, want.HTTPstatus, qt.Commentf("%s", rec.Body))
	got := Error{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &got), qt.IsNil)
	c.Assert(got.Code, qt.Equals, want.Code, qt.Commentf("%s", got.Err))
}

func TestPingAndInfo(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)

	rec := n.request(c, http.MethodGet, PingEndpoint, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	rec = n.request(c, http.MethodGet, InfoEndpoint, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	info := &Info{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), info), qt.IsNil)
	c.Assert(info.ChainID, qt.Equals, uint64(testChainID))
	c.Assert(info.EngineAddress, qt.Equals, testEngineAddress)
	c.Assert(info.ProtocolID, qt.Equals, uint64(1))
	c.Assert(info.KMSSigners, qt.DeepEquals, n.oracle.Addresses())
	c.Assert(info.KMSThreshold, qt.Equals, 2)
	c.Assert(info.Relayer, qt.IsTrue)
}

func TestPollScenarioOverHTTP(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	creator := newKeys(c)
	voters := []*ethereum.SignKeys{newKeys(c), newKeys(c)}

	id := n.createPoll(c, creator, "A", "B", "C")

	rec := n.request(c, http.MethodGet, pollPath(PollEndpoint, id), nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	meta := &types.PollMeta{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), meta), qt.IsNil)
	c.Assert(meta.Creator, qt.Equals, creator.Address())
	c.Assert(meta.OptionsCount, qt.Equals, 3)
	c.Assert(meta.Status, qt.Equals, types.PollStatusActive)

	rec = n.request(c, http.MethodGet, indexPath(PollOptionEndpoint, id, 2), nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	opt := &PollOption{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), opt), qt.IsNil)
	c.Assert(opt.Label, qt.Equals, "C")

	for _, v := range voters {
		rec = n.vote(c, v, id, 1, 3)
		c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body))
	}
	assertError(c, n.vote(c, voters[1], id, 0, 3), ErrAlreadyVoted)

	voterPath := EndpointWithParam(pollPath(VoterEndpoint, id), AddressURLParam, voters[0].Address().Hex())
	rec = n.request(c, http.MethodGet, voterPath, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	status := &VoterStatus{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), status), qt.IsNil)
	c.Assert(status.Voted, qt.IsTrue)

	endReq := &EndPoll{ChainID: testChainID, PollID: id}
	assertError(c, n.signed(c, creator, pollPath(EndPollEndpoint, id), endReq), ErrPollNotOver)
	n.clock.Advance(101 * time.Second)
	rec = n.signed(c, creator, pollPath(EndPollEndpoint, id), endReq)
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body))

	handles := make([]fhe.Handle, 3)
	for i := range handles {
		rec = n.request(c, http.MethodGet, indexPath(EncryptedTallyEndpoint, id, i), nil)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		tally := &EncryptedTally{}
		c.Assert(json.Unmarshal(rec.Body.Bytes(), tally), qt.IsNil)
		handles[i] = tally.Handle
	}
	rec = n.request(c, http.MethodPost, RelayerDecryptEndpoint, &PublicDecrypt{Handles: handles})
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body))
	d := &kms.Decryption{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), d), qt.IsNil)
	c.Assert(d.ClearValues[handles[1]], qt.Equals, uint64(2))

	rec = n.signed(c, creator, pollPath(ResultsEndpoint, id), &PublishResults{
		ChainID:         testChainID,
		PollID:          id,
		Cleartexts:      types.HexBytes(d.AbiEncodedClearValues),
		DecryptionProof: types.HexBytes(d.DecryptionProof),
	})
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("%s", rec.Body))

	for i, want := range []uint32{0, 2, 0} {
		rec = n.request(c, http.MethodGet, indexPath(PostedTallyEndpoint, id, i), nil)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		tally := &PostedTally{}
		c.Assert(json.Unmarshal(rec.Body.Bytes(), tally), qt.IsNil)
		c.Assert(tally.Posted, qt.IsTrue)
		c.Assert(tally.Count, qt.Equals, want)
	}

	rec = n.request(c, http.MethodGet, PollsEndpoint+"?offset=0&limit=5", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	list := &PollList{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), list), qt.IsNil)
	c.Assert(list.Count, qt.Equals, uint64(1))
	c.Assert(list.Polls, qt.HasLen, 1)
	c.Assert(list.Polls[0].Status, qt.Equals, types.PollStatusFinalized)
}

func TestSignedRequests(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	keys := newKeys(c)
	id := n.createPoll(c, keys, "yes", "no")

	c.Run("malformed body", func(c *qt.C) {
		rec := n.request(c, http.MethodPost, PollsEndpoint, "not a signed request")
		assertError(c, rec, ErrMalformedBody)
	})

	c.Run("invalid signature", func(c *qt.C) {
		req, err := SignRequest(keys, &EndPoll{ChainID: testChainID, PollID: id})
		c.Assert(err, qt.IsNil)
		req.Signature = req.Signature[:10]
		assertError(c, n.request(c, http.MethodPost, pollPath(EndPollEndpoint, id), req), ErrInvalidSignature)
	})

	c.Run("tampered payload changes the caller", func(c *qt.C) {
		req, err := SignRequest(keys, &NewPoll{
			ChainID: testChainID, Name: "x", Options: []string{"a", "b"},
			StartTime: n.now(), EndTime: n.now() + 10,
		})
		c.Assert(err, qt.IsNil)
		req.Payload = json.RawMessage(bytes.Replace(req.Payload, []byte(`"x"`), []byte(`"y"`), 1))
		rec := n.request(c, http.MethodPost, PollsEndpoint, req)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		resp := &NewPollResponse{}
		c.Assert(json.Unmarshal(rec.Body.Bytes(), resp), qt.IsNil)

		rec = n.request(c, http.MethodGet, pollPath(PollEndpoint, resp.PollID), nil)
		meta := &types.PollMeta{}
		c.Assert(json.Unmarshal(rec.Body.Bytes(), meta), qt.IsNil)
		c.Assert(meta.Creator, qt.Not(qt.Equals), keys.Address())
	})

	c.Run("chain mismatch", func(c *qt.C) {
		rec := n.signed(c, keys, pollPath(EndPollEndpoint, id), &EndPoll{ChainID: 1, PollID: id})
		assertError(c, rec, ErrChainIDMismatch)
	})

	c.Run("poll mismatch", func(c *qt.C) {
		rec := n.signed(c, keys, pollPath(EndPollEndpoint, id), &EndPoll{ChainID: testChainID, PollID: id + 1})
		assertError(c, rec, ErrPollIDMismatch)
	})
}

func TestErrorResponses(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	keys := newKeys(c)
	id := n.createPoll(c, keys, "yes", "no")

	assertError(c, n.request(c, http.MethodGet, "/polls/abc", nil), ErrMalformedPollID)
	assertError(c, n.request(c, http.MethodGet, pollPath(PollEndpoint, id+1), nil), ErrPollNotFound)
	assertError(c, n.request(c, http.MethodGet, indexPath(PollOptionEndpoint, id, 2), nil), ErrInvalidOptionIndex)
	assertError(c, n.request(c, http.MethodGet, indexPath(PollOptionEndpoint, id, -1), nil), ErrInvalidOptionIndex)
	assertError(c, n.request(c, http.MethodGet, indexPath(PostedTallyEndpoint, id, 0)+"x", nil), ErrMalformedParam)
	assertError(c, n.request(c, http.MethodGet,
		EndpointWithParam(pollPath(VoterEndpoint, id), AddressURLParam, "0x1234"), nil), ErrMalformedParam)

	rec := n.signed(c, keys, PollsEndpoint, &NewPoll{
		ChainID: testChainID, Name: "one option", Options: []string{"a"},
		StartTime: n.now(), EndTime: n.now() + 10,
	})
	assertError(c, rec, ErrInvalidPollParams)

	// a choice attested for 3 options on a 2 options poll
	assertError(c, n.vote(c, keys, id, 2, 3), ErrInvalidOptionIndex)

	// an input bound to another voter
	other := newKeys(c)
	h, proof, err := n.cp.EncryptInput(testEngineAddress, other.Address(), 0, 2)
	c.Assert(err, qt.IsNil)
	rec = n.signed(c, keys, pollPath(VotesEndpoint, id), &Vote{
		ChainID: testChainID, PollID: id, Choice: h, InputProof: proof,
	})
	assertError(c, rec, ErrInvalidEncryptedInput)

	results := &PublishResults{
		ChainID:         testChainID,
		PollID:          id,
		Cleartexts:      make([]byte, 64),
		DecryptionProof: []byte{0, kms.ExtraDataVersion},
	}
	assertError(c, n.signed(c, keys, pollPath(ResultsEndpoint, id), results), ErrPollNotEnded)

	n.clock.Advance(time.Hour)
	assertError(c, n.vote(c, keys, id, 0, 2), ErrPollAlreadyEnded)
	rec = n.signed(c, keys, pollPath(EndPollEndpoint, id), &EndPoll{ChainID: testChainID, PollID: id})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	assertError(c, n.signed(c, keys, pollPath(EndPollEndpoint, id), &EndPoll{ChainID: testChainID, PollID: id}),
		ErrPollAlreadyEnded)

	assertError(c, n.signed(c, keys, pollPath(ResultsEndpoint, id), results), ErrInvalidKMSSignatures)
	results.Cleartexts = results.Cleartexts[:32]
	assertError(c, n.signed(c, keys, pollPath(ResultsEndpoint, id), results), ErrInvalidCleartextsSize)

	// only tally handles of ended polls can be decrypted
	id2 := n.createPoll(c, keys, "yes", "no")
	h2, err := n.api.engine.EncryptedTally(id2, 0)
	c.Assert(err, qt.IsNil)
	rec = n.request(c, http.MethodPost, RelayerDecryptEndpoint, &PublicDecrypt{Handles: []fhe.Handle{h2}})
	assertError(c, rec, ErrHandleNotDecryptable)
}

func TestEngineErrorMapping(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		err  error
		want Error
	}{
		{fmt.Errorf("poll 3: %w", poll.ErrPollNotFound), ErrPollNotFound},
		{fmt.Errorf("%w: %w", poll.ErrInvalidInput, poll.ErrProtocolUnsupported), ErrProtocolUnsupported},
		{fmt.Errorf("%w: bad proof", poll.ErrInvalidInput), ErrInvalidEncryptedInput},
		{fmt.Errorf("poll 1: %w", poll.ErrInvalidKMSSignatures), ErrInvalidKMSSignatures},
		{poll.ErrDuplicateOption, ErrInvalidPollParams},
		{poll.ErrResultsAlreadyPosted, ErrResultsAlreadyPosted},
		{context.Canceled, ErrGenericInternalServerError},
	} {
		got := engineError(tc.err)
		c.Assert(got.Code, qt.Equals, tc.want.Code, qt.Commentf("%v", tc.err))
		c.Assert(got.HTTPstatus, qt.Equals, tc.want.HTTPstatus)
	}
}

func TestRelayerDisabled(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	a, err := newAPI(&APIConfig{Engine: n.api.engine, ChainID: testChainID})
	c.Assert(err, qt.IsNil)
	c.Assert(a.info.Relayer, qt.IsFalse)

	req := httptest.NewRequest(http.MethodPost, RelayerInputsEndpoint, bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}
