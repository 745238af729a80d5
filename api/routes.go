package api

import "strings"

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the chain, engine and KMS parameters of the node
	InfoEndpoint = "/info"

	// PollsEndpoint lists the polls (GET) or creates a new one (POST)
	PollsEndpoint = "/polls"
	PollURLParam  = "pollId"
	// PollEndpoint returns the metadata and status of a poll
	PollEndpoint = "/polls/{" + PollURLParam + "}"

	IndexURLParam   = "idx"
	AddressURLParam = "address"
	// PollOptionEndpoint returns the label of an option
	PollOptionEndpoint = PollEndpoint + "/options/{" + IndexURLParam + "}"
	// EncryptedTallyEndpoint returns the ciphertext handle of an option tally
	EncryptedTallyEndpoint = PollEndpoint + "/tallies/{" + IndexURLParam + "}/encrypted"
	// PostedTallyEndpoint returns the verified cleartext tally of an option
	PostedTallyEndpoint = PollEndpoint + "/tallies/{" + IndexURLParam + "}"
	// VoterEndpoint tells whether an address has voted on a poll
	VoterEndpoint = PollEndpoint + "/voters/{" + AddressURLParam + "}"

	// VotesEndpoint is the endpoint for submitting an encrypted vote
	VotesEndpoint = PollEndpoint + "/votes"
	// EndPollEndpoint closes an expired poll
	EndPollEndpoint = PollEndpoint + "/end"
	// ResultsEndpoint posts the KMS signed decryption of the tallies
	ResultsEndpoint = PollEndpoint + "/results"

	// RelayerInputsEndpoint and RelayerDecryptEndpoint expose the simulated
	// coprocessor and KMS to clients. In a real deployment these are served
	// by the relayer of the FHE network, not by the poll node.
	RelayerInputsEndpoint  = "/relayer/inputs"
	RelayerDecryptEndpoint = "/relayer/decrypt"
)

// EndpointWithParam replaces the URL parameter param of endpoint with value.
func EndpointWithParam(endpoint, param, value string) string {
	return strings.Replace(endpoint, "{"+param+"}", value, 1)
}
