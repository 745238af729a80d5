package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
	"go.vocdoni.io/dvote/db/metadb"
)

const testChainID = 31337

var (
	testEngineAddress     = common.HexToAddress("0xe000000000000000000000000000000000000001")
	testDecryptionAddress = common.HexToAddress("0xd000000000000000000000000000000000000001")
	testNodeAddress       = common.HexToAddress("0x0000000000000000000000000000000000000a0d")
)

type testNode struct {
	engine  *poll.Engine
	storage *storage.Storage
	cp      *fhe.Coprocessor
	oracle  *kms.Oracle
	clock   *poll.ManualClock
}

// newTestNode runs the engine over a pebble database.
func newTestNode(t testing.TB) *testNode {
	c := qt.New(t)
	database := metadb.NewTest(t)
	cp, err := fhe.NewCoprocessor(database, fhe.CoprocessorConfig{
		ChainID: testChainID,
		KeyBits: 512,
	})
	c.Assert(err, qt.IsNil)
	signers, err := kms.GenerateSigners(3)
	c.Assert(err, qt.IsNil)
	oracle := kms.NewOracle(cp, signers, testChainID, testDecryptionAddress)
	verifier, err := kms.NewThresholdVerifier(oracle.Addresses(), 2, testChainID, testDecryptionAddress)
	c.Assert(err, qt.IsNil)
	clock := poll.NewManualClock(time.Unix(1_700_000_000, 0))
	stg := storage.New(database)
	engine, err := poll.New(stg, cp, verifier, &poll.Config{Address: testEngineAddress, Clock: clock})
	c.Assert(err, qt.IsNil)
	return &testNode{engine: engine, storage: stg, cp: cp, oracle: oracle, clock: clock}
}

// createPoll creates a poll ending in a minute.
func (n *testNode) createPoll(c *qt.C, options ...string) uint64 {
	now := n.engine.Now()
	id, err := n.engine.CreatePoll(context.Background(), testNodeAddress, "service poll", options, now, now+60)
	c.Assert(err, qt.IsNil)
	return id
}

func (n *testNode) vote(c *qt.C, voter common.Address, pollID, choice uint64, bound uint8) {
	h, proof, err := n.cp.EncryptInput(testEngineAddress, voter, choice, bound)
	c.Assert(err, qt.IsNil)
	c.Assert(n.engine.Vote(context.Background(), voter, pollID, h, proof), qt.IsNil)
}

func (n *testNode) status(c *qt.C, pollID uint64) types.PollStatus {
	status, err := n.engine.Status(pollID)
	c.Assert(err, qt.IsNil)
	return status
}

// waitStatus polls the engine until the poll reaches status or the timeout
// expires.
func (n *testNode) waitStatus(c *qt.C, pollID uint64, status types.PollStatus, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for n.status(c, pollID) != status {
		if time.Now().After(deadline) {
			c.Fatalf("poll %d did not reach status %s, got %s", pollID, status, n.status(c, pollID))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// flakyDecrypter fails the first failures requests.
type flakyDecrypter struct {
	PublicDecrypter
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyDecrypter) PublicDecrypt(ctx context.Context, handles []fhe.Handle) (*kms.Decryption, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, context.DeadlineExceeded
	}
	return f.PublicDecrypter.PublicDecrypt(ctx, handles)
}

func voterAddress(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", 0xb000+i))
}
