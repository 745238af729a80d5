package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
)

// encryptInput encrypts a choice for a user and the engine address
// POST /relayer/inputs
func (a *API) encryptInput(w http.ResponseWriter, r *http.Request) {
	req := &EncryptInput{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	h, proof, err := a.inputs.EncryptInput(a.info.EngineAddress, req.User, req.Choice, req.Bound)
	if err != nil {
		engineError(err).Write(w)
		return
	}
	httpWriteJSON(w, &EncryptedInput{Handle: h, InputProof: proof})
}

// publicDecrypt asks the KMS for the decryption of publicly decryptable
// handles
// POST /relayer/decrypt
func (a *API) publicDecrypt(w http.ResponseWriter, r *http.Request) {
	req := &PublicDecrypt{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if len(req.Handles) == 0 {
		ErrMalformedBody.With("no handles").Write(w)
		return
	}
	d, err := a.decrypter.PublicDecrypt(r.Context(), req.Handles)
	if err != nil {
		if errors.Is(err, fhe.ErrNotDecryptable) || errors.Is(err, fhe.ErrCiphertextNotFound) {
			ErrHandleNotDecryptable.WithErr(err).Write(w)
			return
		}
		ErrRelayerUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, d)
}
