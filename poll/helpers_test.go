package poll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
)

const testChainID = 31337

var (
	testEngineAddress     = common.HexToAddress("0xe000000000000000000000000000000000000001")
	testDecryptionAddress = common.HexToAddress("0xd000000000000000000000000000000000000001")
	testCreator           = common.HexToAddress("0xc000000000000000000000000000000000000001")
)

type testEnv struct {
	engine *Engine
	cp     *fhe.Coprocessor
	oracle *kms.Oracle
	clock  *ManualClock
}

func newTestEnv(t testing.TB) *testEnv {
	c := qt.New(t)
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

	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	engine, err := New(storage.New(database), cp, verifier, &Config{
		Address:    testEngineAddress,
		ProtocolID: 1,
		Clock:      clock,
	})
	c.Assert(err, qt.IsNil)
	return &testEnv{engine: engine, cp: cp, oracle: oracle, clock: clock}
}

func voterAddress(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", 0xa000+i))
}

// createPoll creates a poll that started 10 seconds ago and ends in 100.
func (env *testEnv) createPoll(c *qt.C, options ...string) uint64 {
	now := env.engine.Now()
	id, err := env.engine.CreatePoll(context.Background(), testCreator, "test poll", options, now-10, now+100)
	c.Assert(err, qt.IsNil)
	return id
}

// vote encrypts choice for voter, attested below the poll options count.
func (env *testEnv) vote(c *qt.C, voter common.Address, pollID uint64, choice uint64) error {
	meta, err := env.engine.PollMeta(pollID)
	c.Assert(err, qt.IsNil)
	h, proof, err := env.cp.EncryptInput(testEngineAddress, voter, choice, uint8(meta.OptionsCount))
	c.Assert(err, qt.IsNil)
	return env.engine.Vote(context.Background(), voter, pollID, h, proof)
}

// end moves the clock past the end of the poll and ends it.
func (env *testEnv) end(c *qt.C, pollID uint64) {
	meta, err := env.engine.PollMeta(pollID)
	c.Assert(err, qt.IsNil)
	if now := env.engine.Now(); now < meta.EndTime {
		env.clock.Advance(time.Duration(meta.EndTime-now) * time.Second)
	}
	c.Assert(env.engine.EndPoll(context.Background(), testCreator, pollID), qt.IsNil)
}

func (env *testEnv) decrypt(c *qt.C, pollID uint64) *kms.Decryption {
	handles, err := env.engine.EncryptedTallies(pollID)
	c.Assert(err, qt.IsNil)
	d, err := env.oracle.PublicDecrypt(context.Background(), handles)
	c.Assert(err, qt.IsNil)
	return d
}

func (env *testEnv) postedTallies(c *qt.C, pollID uint64) []uint32 {
	p, err := env.engine.Poll(pollID)
	c.Assert(err, qt.IsNil)
	out := make([]uint32, p.OptionsCount())
	for i := range out {
		posted, count, err := env.engine.PostedTally(pollID, i)
		c.Assert(err, qt.IsNil)
		c.Assert(posted, qt.IsTrue)
		out[i] = count
	}
	return out
}
