package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/vocdoni-fhe-polls/api"
	"github.com/vocdoni/vocdoni-fhe-polls/api/client"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

var (
	options  = []string{"A", "B", "C"}
	expected = []uint32{0, 2, 0}
)

func main() {
	host := flag.String("host", "http://localhost:9090", "poll node API endpoint")
	duration := flag.Duration("duration", 15*time.Second, "voting window of the test poll")
	timeout := flag.Duration("timeout", time.Minute, "time to wait for the results once the poll ends")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	if err := runScenario(*host, *duration, *timeout); err != nil {
		log.Errorw(err, "e2e scenario failed")
		os.Exit(1)
	}
	log.Info("e2e scenario succeeded")
}

func runScenario(host string, duration, timeout time.Duration) error {
	cli, err := client.New(host)
	if err != nil {
		return err
	}
	info, err := cli.Info()
	if err != nil {
		return err
	}
	if !info.Relayer {
		return fmt.Errorf("node at %s does not expose the relayer endpoints", host)
	}
	log.Infow("connected to poll node", "chainId", info.ChainID, "engine", info.EngineAddress.Hex(),
		"kmsSigners", len(info.KMSSigners), "kmsThreshold", info.KMSThreshold)

	creator, err := newAccount()
	if err != nil {
		return err
	}
	now := types.Unix(time.Now())
	pollID, err := cli.CreatePoll(creator, &api.NewPoll{
		ChainID:   info.ChainID,
		Name:      "e2e poll",
		Options:   options,
		StartTime: now,
		EndTime:   now + uint64(duration.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("create poll: %w", err)
	}
	log.Infow("poll created", "pollId", pollID)

	voters := make([]*ethereum.SignKeys, 2)
	for i := range voters {
		if voters[i], err = newAccount(); err != nil {
			return err
		}
		if err := castVote(cli, info.ChainID, voters[i], pollID, 1); err != nil {
			return fmt.Errorf("vote %d: %w", i, err)
		}
		log.Infow("vote cast", "pollId", pollID, "voter", voters[i].AddressString())
	}
	err = castVote(cli, info.ChainID, voters[1], pollID, 0)
	var apiErr api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.ErrAlreadyVoted.Code {
		return fmt.Errorf("repeated vote not rejected as expected: %v", err)
	}
	log.Info("repeated vote rejected")

	meta, err := cli.Poll(pollID)
	if err != nil {
		return err
	}
	if wait := time.Until(time.Unix(int64(meta.EndTime), 0)); wait > 0 {
		log.Infow("waiting for the poll to end", "wait", wait.Round(time.Second).String())
		time.Sleep(wait + time.Second)
	}
	err = cli.EndPoll(creator, &api.EndPoll{ChainID: info.ChainID, PollID: pollID})
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Code == api.ErrPollAlreadyEnded.Code) {
		return fmt.Errorf("end poll: %w", err)
	}

	if err := waitResults(cli, pollID, timeout); err != nil {
		log.Warnw("results not published by the node, publishing them", "error", err.Error())
		if err := publishResults(cli, info.ChainID, creator, pollID); err != nil {
			return err
		}
	}

	for i, want := range expected {
		posted, count, err := cli.PostedTally(pollID, i)
		if err != nil {
			return err
		}
		if !posted || count != want {
			return fmt.Errorf("option %s: got (%t, %d), expected (true, %d)", options[i], posted, count, want)
		}
		log.Infow("posted tally", "option", options[i], "count", count)
	}
	return nil
}

func newAccount() (*ethereum.SignKeys, error) {
	k := ethereum.NewSignKeys()
	return k, k.Generate()
}

func castVote(cli *client.HTTPclient, chainID uint64, voter *ethereum.SignKeys, pollID, choice uint64) error {
	in, err := cli.EncryptInput(voter.Address(), choice, uint8(len(options)))
	if err != nil {
		return err
	}
	return cli.Vote(voter, &api.Vote{
		ChainID:    chainID,
		PollID:     pollID,
		Choice:     in.Handle,
		InputProof: in.InputProof,
	})
}

// waitResults waits for the node relayer to finalize the poll.
func waitResults(cli *client.HTTPclient, pollID uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		meta, err := cli.Poll(pollID)
		if err != nil {
			return err
		}
		if meta.Status == types.PollStatusFinalized {
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("poll %d not finalized after %s", pollID, timeout)
}

// publishResults requests the public decryption of the tallies and posts it.
func publishResults(cli *client.HTTPclient, chainID uint64, caller *ethereum.SignKeys, pollID uint64) error {
	handles := make([]fhe.Handle, len(options))
	for i := range handles {
		var err error
		if handles[i], err = cli.EncryptedTally(pollID, i); err != nil {
			return err
		}
	}
	d, err := cli.PublicDecrypt(handles)
	if err != nil {
		return fmt.Errorf("public decryption: %w", err)
	}
	values, err := kms.DecodeCleartexts(d.AbiEncodedClearValues, len(handles))
	if err != nil {
		return err
	}
	log.Infow("tallies decrypted", "requestId", d.RequestID, "values", values)
	return cli.PublishResults(caller, &api.PublishResults{
		ChainID:         chainID,
		PollID:          pollID,
		Cleartexts:      types.HexBytes(d.AbiEncodedClearValues),
		DecryptionProof: types.HexBytes(d.DecryptionProof),
	})
}
