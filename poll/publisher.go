package poll

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// PublishResults verifies a public decryption of the poll tallies and, if
// the proof holds, stores the cleartext counts and finalizes the poll. The
// proof must cover exactly the tally handles the poll holds, in option
// order, so a proof for another poll never verifies.
func (e *Engine) PublishResults(ctx context.Context, caller common.Address, pollID uint64,
	cleartexts, decryptionProof []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events, err := e.publishResults(caller, pollID, cleartexts, decryptionProof)
	if err != nil {
		return err
	}
	e.emit(events...)
	return nil
}

func (e *Engine) publishResults(caller common.Address, pollID uint64,
	cleartexts, decryptionProof []byte,
) ([]*types.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.poll(pollID)
	if err != nil {
		return nil, err
	}
	if !p.Decryptable {
		return nil, fmt.Errorf("%w: poll %d", ErrPollNotEnded, pollID)
	}
	if p.ResultsPosted {
		return nil, fmt.Errorf("%w: poll %d", ErrResultsAlreadyPosted, pollID)
	}
	if len(cleartexts) != kms.WordSize*p.OptionsCount() {
		return nil, fmt.Errorf("%w: %d bytes for %d options", ErrInvalidCleartextsSize, len(cleartexts), p.OptionsCount())
	}
	if err := e.verifier.VerifyDecryption(p.EncryptedTally, cleartexts, decryptionProof); err != nil {
		return nil, fmt.Errorf("poll %d: %w", pollID, err)
	}
	counts, err := kms.DecodeCleartexts(cleartexts, p.OptionsCount())
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}
	if total != p.VoterCount {
		log.Warnw("posted tally does not match the number of voters",
			"pollId", pollID, "total", total, "voters", p.VoterCount)
	}

	p.PostedTally = counts
	p.ResultsPosted = true
	if err := e.storage.SetPoll(p); err != nil {
		return nil, fmt.Errorf("cannot store poll: %w", err)
	}
	log.Infow("results posted", "pollId", pollID, "tally", counts, "caller", caller.Hex())
	return []*types.Event{
		{
			Kind:       types.EventPublicDecryptionVerified,
			PollID:     pollID,
			Actor:      caller,
			Handles:    p.EncryptedTally,
			Cleartexts: append(types.HexBytes(nil), cleartexts...),
		},
		{Kind: types.EventResultsPosted, PollID: pollID, Actor: caller},
	}, nil
}
