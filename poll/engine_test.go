package poll

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

func TestPollScenario(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.createPoll(c, "A", "B", "C")
	status, err := env.engine.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.PollStatusActive)

	// two voters pick B, the third ballot repeats an identity that already
	// voted and must leave every tally as it was
	c.Assert(env.vote(c, voterAddress(1), id, 1), qt.IsNil)
	c.Assert(env.vote(c, voterAddress(2), id, 1), qt.IsNil)
	before, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	c.Assert(env.vote(c, voterAddress(2), id, 0), qt.ErrorIs, ErrAlreadyVoted)
	after, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)
	voters, err := env.engine.Voters(id)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.HasLen, 2)

	env.clock.Advance(101 * time.Second)
	status, err = env.engine.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.PollStatusEnded)
	c.Assert(env.engine.EndPoll(ctx, voterAddress(3), id), qt.IsNil)
	status, err = env.engine.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.PollStatusDecryptable)

	d := env.decrypt(c, id)
	values, err := kms.DecodeCleartexts(d.AbiEncodedClearValues, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(values, qt.DeepEquals, []uint32{0, 2, 0})

	c.Assert(env.engine.PublishResults(ctx, voterAddress(3), id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)
	for i, want := range []uint32{0, 2, 0} {
		posted, count, err := env.engine.PostedTally(id, i)
		c.Assert(err, qt.IsNil)
		c.Assert(posted, qt.IsTrue)
		c.Assert(count, qt.Equals, want)
	}
	status, err = env.engine.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.PollStatusFinalized)
}

func TestCreatePoll(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.engine.Now()

	for _, tc := range []struct {
		name    string
		title   string
		options []string
		start   uint64
		end     uint64
		err     error
	}{
		{"one option", "p", []string{"A"}, now, now + 10, ErrInvalidOptionsCount},
		{"five options", "p", []string{"A", "B", "C", "D", "E"}, now, now + 10, ErrInvalidOptionsCount},
		{"no options", "p", nil, now, now + 10, ErrInvalidOptionsCount},
		{"end equals start", "p", []string{"A", "B"}, now, now, ErrInvalidTimeRange},
		{"end before start", "p", []string{"A", "B"}, now, now - 1, ErrInvalidTimeRange},
		{"empty name", "", []string{"A", "B"}, now, now + 10, ErrEmptyName},
		{"empty label", "p", []string{"A", ""}, now, now + 10, ErrEmptyOption},
		{"duplicated label", "p", []string{"A", "B", "A"}, now, now + 10, ErrDuplicateOption},
	} {
		c.Run(tc.name, func(c *qt.C) {
			_, err := env.engine.CreatePoll(ctx, testCreator, tc.title, tc.options, tc.start, tc.end)
			c.Assert(err, qt.ErrorIs, tc.err)
			c.Assert(ErrorClass(err), qt.Equals, ClassInputValidation)
		})
	}
	count, err := env.engine.PollCount()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(0))

	for i := 0; i < 3; i++ {
		id, err := env.engine.CreatePoll(ctx, testCreator, fmt.Sprintf("poll %d", i), []string{"yes", "no"}, now+5, now+50)
		c.Assert(err, qt.IsNil)
		c.Assert(id, qt.Equals, uint64(i))
	}
	count, err = env.engine.PollCount()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(3))

	meta, err := env.engine.PollMeta(2)
	c.Assert(err, qt.IsNil)
	c.Assert(meta.Name, qt.Equals, "poll 2")
	c.Assert(meta.OptionsCount, qt.Equals, 2)
	c.Assert(meta.StartTime, qt.Equals, now+5)
	c.Assert(meta.EndTime, qt.Equals, now+50)
	c.Assert(meta.Creator, qt.Equals, testCreator)
	c.Assert(meta.Decryptable, qt.IsFalse)
	c.Assert(meta.ResultsPosted, qt.IsFalse)
	c.Assert(meta.Status, qt.Equals, types.PollStatusScheduled)

	// every tally starts as an encrypted zero
	handles, err := env.engine.EncryptedTallies(2)
	c.Assert(err, qt.IsNil)
	c.Assert(env.cp.MakePubliclyDecryptable(handles...), qt.IsNil)
	for _, h := range handles {
		c.Assert(h.Type(), qt.Equals, TallyType)
		v, err := env.cp.Decrypt(h)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, uint64(0))
	}

	metas, err := env.engine.Polls(1, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(metas, qt.HasLen, 2)
	c.Assert(metas[0].ID, qt.Equals, uint64(1))
}

func TestReadSurface(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	id := env.createPoll(c, "A", "B", "C")

	label, err := env.engine.PollOption(id, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(label, qt.Equals, "C")
	_, err = env.engine.PollOption(id, 3)
	c.Assert(err, qt.ErrorIs, ErrInvalidOptionIndex)
	_, err = env.engine.PollOption(id, -1)
	c.Assert(err, qt.ErrorIs, ErrInvalidOptionIndex)

	h, err := env.engine.EncryptedTally(id, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(h.IsZero(), qt.IsFalse)
	_, err = env.engine.EncryptedTally(id, 3)
	c.Assert(err, qt.ErrorIs, ErrInvalidOptionIndex)

	posted, count, err := env.engine.PostedTally(id, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(posted, qt.IsFalse)
	c.Assert(count, qt.Equals, uint32(0))

	voted, err := env.engine.HasVoted(id, voterAddress(1))
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)

	// unknown polls are rejected by every read
	_, err = env.engine.PollMeta(7)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, err = env.engine.PollOption(7, 0)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, err = env.engine.EncryptedTally(7, 0)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, _, err = env.engine.PostedTally(7, 0)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, err = env.engine.HasVoted(7, voterAddress(1))
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, err = env.engine.Voters(7)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	c.Assert(ErrorClass(err), qt.Equals, ClassStatePrecondition)
}

func TestVoteWindow(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.engine.Now()

	id, err := env.engine.CreatePoll(ctx, testCreator, "later", []string{"A", "B"}, now+10, now+20)
	c.Assert(err, qt.IsNil)
	before, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)

	c.Assert(env.vote(c, voterAddress(1), id, 0), qt.ErrorIs, ErrPollNotStarted)
	after, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)
	voted, err := env.engine.HasVoted(id, voterAddress(1))
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)

	env.clock.Advance(10 * time.Second)
	c.Assert(env.vote(c, voterAddress(1), id, 0), qt.IsNil)

	// the window closes at the end time, even before the poll is ended
	env.clock.Advance(10 * time.Second)
	c.Assert(env.vote(c, voterAddress(2), id, 0), qt.ErrorIs, ErrPollAlreadyEnded)

	c.Assert(env.engine.EndPoll(ctx, testCreator, id), qt.IsNil)
	before, err = env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(env.vote(c, voterAddress(2), id, 1), qt.ErrorIs, ErrPollAlreadyEnded)
	after, err = env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)
	c.Assert(after.VoterCount, qt.Equals, uint64(1))

	h, proof, err := env.cp.EncryptInput(testEngineAddress, voterAddress(2), 0, 2)
	c.Assert(err, qt.IsNil)
	err = env.engine.Vote(ctx, voterAddress(2), id+1, h, proof)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
}

func TestAlreadyVoted(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	id := env.createPoll(c, "A", "B")

	c.Assert(env.vote(c, voterAddress(1), id, 1), qt.IsNil)
	first, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)

	err = env.vote(c, voterAddress(1), id, 0)
	c.Assert(err, qt.ErrorIs, ErrAlreadyVoted)
	c.Assert(ErrorClass(err), qt.Equals, ClassStatePrecondition)
	second, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.DeepEquals, first)

	voters, err := env.engine.Voters(id)
	c.Assert(err, qt.IsNil)
	c.Assert(len(voters), qt.Equals, 1)

	env.end(c, id)
	d := env.decrypt(c, id)
	c.Assert(env.engine.PublishResults(context.Background(), testCreator, id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)
	c.Assert(env.postedTallies(c, id), qt.DeepEquals, []uint32{0, 1})
}

func TestVoteRejectsInvalidInput(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createPoll(c, "A", "B", "C")
	voter := voterAddress(1)

	c.Run("proof for another voter", func(c *qt.C) {
		h, proof, err := env.cp.EncryptInput(testEngineAddress, voterAddress(2), 0, 3)
		c.Assert(err, qt.IsNil)
		err = env.engine.Vote(ctx, voter, id, h, proof)
		c.Assert(err, qt.ErrorIs, ErrInvalidInput)
		c.Assert(err, qt.ErrorIs, fhe.ErrInvalidInputProof)
		c.Assert(ErrorClass(err), qt.Equals, ClassInputValidation)
	})
	c.Run("proof for another contract", func(c *qt.C) {
		h, proof, err := env.cp.EncryptInput(testCreator, voter, 0, 3)
		c.Assert(err, qt.IsNil)
		c.Assert(env.engine.Vote(ctx, voter, id, h, proof), qt.ErrorIs, ErrInvalidInput)
	})
	c.Run("range above the options count", func(c *qt.C) {
		h, proof, err := env.cp.EncryptInput(testEngineAddress, voter, 3, 4)
		c.Assert(err, qt.IsNil)
		err = env.engine.Vote(ctx, voter, id, h, proof)
		c.Assert(err, qt.ErrorIs, ErrInvalidOptionIndex)
		c.Assert(ErrorClass(err), qt.Equals, ClassInputValidation)
	})
	c.Run("choice outside the range", func(c *qt.C) {
		_, _, err := env.cp.EncryptInput(testEngineAddress, voter, 3, 3)
		c.Assert(err, qt.ErrorIs, ErrInvalidOptionIndex)
	})
	c.Run("unsupported handle version", func(c *qt.C) {
		h, proof, err := env.cp.EncryptInput(testEngineAddress, voter, 0, 3)
		c.Assert(err, qt.IsNil)
		h[31] = fhe.HandleVersion + 1
		err = env.engine.Vote(ctx, voter, id, h, proof)
		c.Assert(err, qt.ErrorIs, ErrProtocolUnsupported)
		c.Assert(ErrorClass(err), qt.Equals, ClassTrustProof)
	})

	// none of the rejected votes touched the poll
	p, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(p.VoterCount, qt.Equals, uint64(0))
	voted, err := env.engine.HasVoted(id, voter)
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)
	c.Assert(env.vote(c, voter, id, 2), qt.IsNil)
}

func TestEndPoll(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createPoll(c, "A", "B")

	err := env.engine.EndPoll(ctx, testCreator, id)
	c.Assert(err, qt.ErrorIs, ErrPollNotOver)
	meta, err := env.engine.PollMeta(id)
	c.Assert(err, qt.IsNil)
	c.Assert(meta.Decryptable, qt.IsFalse)

	env.clock.Advance(100 * time.Second)
	// any identity can end an expired poll
	c.Assert(env.engine.EndPoll(ctx, voterAddress(9), id), qt.IsNil)
	c.Assert(env.engine.EndPoll(ctx, testCreator, id), qt.ErrorIs, ErrPollAlreadyEnded)

	env.clock.Advance(24 * time.Hour)
	meta, err = env.engine.PollMeta(id)
	c.Assert(err, qt.IsNil)
	c.Assert(meta.Decryptable, qt.IsTrue)
	c.Assert(meta.Status, qt.Equals, types.PollStatusDecryptable)

	handles, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	for _, h := range handles {
		c.Assert(env.cp.IsPubliclyDecryptable(h), qt.IsTrue)
	}

	c.Assert(env.engine.EndPoll(ctx, testCreator, id+1), qt.ErrorIs, ErrPollNotFound)
}

func TestPublishResults(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.createPoll(c, "A", "B", "C")
	other := env.createPoll(c, "A", "B", "C")
	c.Assert(env.vote(c, voterAddress(1), id, 2), qt.IsNil)
	c.Assert(env.vote(c, voterAddress(1), other, 0), qt.IsNil)

	valid, err := kms.EncodeCleartexts([]uint32{0, 0, 1})
	c.Assert(err, qt.IsNil)
	err = env.engine.PublishResults(ctx, testCreator, id, valid, []byte{0})
	c.Assert(err, qt.ErrorIs, ErrPollNotEnded)

	env.end(c, id)
	env.end(c, other)
	d := env.decrypt(c, id)
	dOther := env.decrypt(c, other)
	before, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)

	c.Run("wrong size", func(c *qt.C) {
		err := env.engine.PublishResults(ctx, testCreator, id, d.AbiEncodedClearValues[:64], d.DecryptionProof)
		c.Assert(err, qt.ErrorIs, ErrInvalidCleartextsSize)
		c.Assert(ErrorClass(err), qt.Equals, ClassInputValidation)
	})
	c.Run("tampered cleartexts", func(c *qt.C) {
		for i := range d.AbiEncodedClearValues {
			tampered := append([]byte{}, d.AbiEncodedClearValues...)
			tampered[i] ^= 0x80
			err := env.engine.PublishResults(ctx, testCreator, id, tampered, d.DecryptionProof)
			c.Assert(err, qt.ErrorIs, ErrInvalidKMSSignatures, qt.Commentf("byte %d", i))
		}
	})
	c.Run("proof of another poll", func(c *qt.C) {
		err := env.engine.PublishResults(ctx, testCreator, id, dOther.AbiEncodedClearValues, dOther.DecryptionProof)
		c.Assert(err, qt.ErrorIs, ErrInvalidKMSSignatures)
		c.Assert(ErrorClass(err), qt.Equals, ClassTrustProof)
	})
	c.Run("below threshold", func(c *qt.C) {
		proof, err := kms.ParseProof(d.DecryptionProof)
		c.Assert(err, qt.IsNil)
		proof.Signatures = proof.Signatures[:1]
		err = env.engine.PublishResults(ctx, testCreator, id, d.AbiEncodedClearValues, proof.Marshal())
		c.Assert(err, qt.ErrorIs, ErrInvalidKMSSignatures)
	})
	c.Run("unsupported proof version", func(c *qt.C) {
		proof, err := kms.ParseProof(d.DecryptionProof)
		c.Assert(err, qt.IsNil)
		proof.ExtraData = []byte{kms.ExtraDataVersion + 1}
		err = env.engine.PublishResults(ctx, testCreator, id, d.AbiEncodedClearValues, proof.Marshal())
		c.Assert(err, qt.ErrorIs, ErrProtocolUnsupported)
	})

	after, err := env.engine.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, before)

	c.Assert(env.engine.PublishResults(ctx, testCreator, id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)
	c.Assert(env.postedTallies(c, id), qt.DeepEquals, []uint32{0, 0, 1})

	// a second publication fails whatever the proof
	err = env.engine.PublishResults(ctx, testCreator, id, d.AbiEncodedClearValues, d.DecryptionProof)
	c.Assert(err, qt.ErrorIs, ErrResultsAlreadyPosted)
	err = env.engine.PublishResults(ctx, testCreator, id, []byte("garbage"), nil)
	c.Assert(err, qt.ErrorIs, ErrResultsAlreadyPosted)
	c.Assert(env.postedTallies(c, id), qt.DeepEquals, []uint32{0, 0, 1})

	c.Assert(env.engine.PublishResults(ctx, testCreator, 99, valid, nil), qt.ErrorIs, ErrPollNotFound)
}

func TestTallyConservation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	rnd := rand.New(rand.NewSource(7))

	for _, options := range [][]string{{"A", "B"}, {"A", "B", "C"}, {"A", "B", "C", "D"}} {
		id := env.createPoll(c, options...)
		want := make([]uint32, len(options))
		voters := 3 + rnd.Intn(5)
		for v := 0; v < voters; v++ {
			choice := rnd.Intn(len(options))
			want[choice]++
			c.Assert(env.vote(c, voterAddress(v), id, uint64(choice)), qt.IsNil)
		}
		env.end(c, id)
		d := env.decrypt(c, id)
		c.Assert(env.engine.PublishResults(context.Background(), testCreator, id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)

		got := env.postedTallies(c, id)
		c.Assert(got, qt.DeepEquals, want)
		var sum uint64
		for _, v := range got {
			sum += uint64(v)
		}
		p, err := env.engine.Poll(id)
		c.Assert(err, qt.IsNil)
		c.Assert(sum, qt.Equals, p.VoterCount)
		c.Assert(p.VoterCount, qt.Equals, uint64(voters))
	}
}

func TestVoteTouchesEveryTally(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	id := env.createPoll(c, "A", "B", "C", "D")

	before, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	c.Assert(env.vote(c, voterAddress(1), id, 3), qt.IsNil)
	after, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	for i := range before {
		c.Assert(after[i], qt.Not(qt.Equals), before[i], qt.Commentf("tally %d", i))
	}
}

func TestConcurrentVotes(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	id := env.createPoll(c, "A", "B")

	type ballot struct {
		voter int
		h     fhe.Handle
		proof []byte
	}
	var ballots []ballot
	for i := 0; i < 4; i++ {
		// every voter sends the same ballot twice
		h, proof, err := env.cp.EncryptInput(testEngineAddress, voterAddress(i), uint64(i%2), 2)
		c.Assert(err, qt.IsNil)
		ballots = append(ballots, ballot{i, h, proof}, ballot{i, h, proof})
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ballots))
	for _, b := range ballots {
		wg.Add(1)
		go func(b ballot) {
			defer wg.Done()
			errs <- env.engine.Vote(context.Background(), voterAddress(b.voter), id, b.h, b.proof)
		}(b)
	}
	wg.Wait()
	close(errs)

	accepted, rejected := 0, 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		c.Assert(err, qt.ErrorIs, ErrAlreadyVoted)
		rejected++
	}
	c.Assert(accepted, qt.Equals, 4)
	c.Assert(rejected, qt.Equals, 4)

	env.end(c, id)
	d := env.decrypt(c, id)
	c.Assert(env.engine.PublishResults(context.Background(), testCreator, id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)
	c.Assert(env.postedTallies(c, id), qt.DeepEquals, []uint32{2, 2})
}

func TestEvents(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	events := make(chan *types.Event, 16)
	sub := env.engine.Subscribe(events)
	defer sub.Unsubscribe()

	id := env.createPoll(c, "A", "B")
	c.Assert(env.vote(c, voterAddress(1), id, 1), qt.IsNil)
	c.Assert(env.vote(c, voterAddress(1), id, 1), qt.ErrorIs, ErrAlreadyVoted)
	env.end(c, id)
	d := env.decrypt(c, id)
	c.Assert(env.engine.PublishResults(context.Background(), voterAddress(2), id, d.AbiEncodedClearValues, d.DecryptionProof), qt.IsNil)

	var got []*types.Event
	for len(got) < 5 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(time.Second):
			c.Fatalf("timeout after %d events", len(got))
		}
	}
	kinds := make([]types.EventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
		c.Assert(ev.PollID, qt.Equals, id)
	}
	c.Assert(kinds, qt.DeepEquals, []types.EventKind{
		types.EventPollCreated,
		types.EventVoteCast,
		types.EventPollEnded,
		types.EventPublicDecryptionVerified,
		types.EventResultsPosted,
	})
	c.Assert(got[0].Actor, qt.Equals, testCreator)
	c.Assert(got[1].Actor, qt.Equals, voterAddress(1))
	c.Assert(got[1].Handles, qt.IsNil)
	c.Assert(got[1].Cleartexts, qt.IsNil)
	handles, err := env.engine.EncryptedTallies(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got[3].Handles, qt.DeepEquals, handles)
	c.Assert([]byte(got[3].Cleartexts), qt.DeepEquals, []byte(d.AbiEncodedClearValues))
	c.Assert(got[4].Actor, qt.Equals, voterAddress(2))

	select {
	case ev := <-events:
		c.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestEngineProtocolMismatch(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	_, err := New(env.engine.storage, env.cp, env.engine.verifier, &Config{ProtocolID: 2})
	c.Assert(err, qt.ErrorIs, ErrProtocolUnsupported)
}

func TestErrorClass(t *testing.T) {
	c := qt.New(t)
	c.Assert(ErrorClass(nil), qt.Equals, ClassUnknown)
	c.Assert(ErrorClass(fmt.Errorf("boom")), qt.Equals, ClassUnknown)
	c.Assert(ErrorClass(fmt.Errorf("wrapped: %w", ErrPollNotOver)), qt.Equals, ClassStatePrecondition)
	c.Assert(ErrorClass(ErrInvalidCleartextsSize), qt.Equals, ClassInputValidation)
	c.Assert(ErrorClass(ErrInvalidKMSSignatures), qt.Equals, ClassTrustProof)
	c.Assert(ClassTrustProof.String(), qt.Equals, "trust-proof")
}
