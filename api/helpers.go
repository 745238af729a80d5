package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// pollIDParam parses the poll ID of the request URL.
func pollIDParam(r *http.Request) (uint64, *Error) {
	id, err := strconv.ParseUint(chi.URLParam(r, PollURLParam), 10, 64)
	if err != nil {
		apiErr := ErrMalformedPollID.WithErr(err)
		return 0, &apiErr
	}
	return id, nil
}

// indexParam parses the option index of the request URL.
func indexParam(r *http.Request) (int, *Error) {
	idx, err := strconv.Atoi(chi.URLParam(r, IndexURLParam))
	if err != nil {
		apiErr := ErrMalformedParam.Withf("option index: %v", err)
		return 0, &apiErr
	}
	return idx, nil
}

// addressParam parses the hex address of the request URL.
func addressParam(r *http.Request) (common.Address, *Error) {
	s := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(s) {
		apiErr := ErrMalformedParam.Withf("address %q", s)
		return common.Address{}, &apiErr
	}
	return common.HexToAddress(s), nil
}

// uintQuery parses an optional unsigned query parameter.
func uintQuery(r *http.Request, key string, def uint64) (uint64, *Error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		apiErr := ErrMalformedParam.Withf("%s: %v", key, err)
		return 0, &apiErr
	}
	return v, nil
}

// decodeSigned decodes a SignedRequest body into payload and returns the
// address that signed it. The payload chain ID must match the node's.
func (a *API) decodeSigned(r *http.Request, payload interface{ chainID() uint64 }) (common.Address, *Error) {
	req := &SignedRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		apiErr := ErrMalformedBody.Withf("could not decode request body: %v", err)
		return common.Address{}, &apiErr
	}
	caller, err := req.Caller()
	if err != nil {
		apiErr := ErrInvalidSignature.WithErr(err)
		return common.Address{}, &apiErr
	}
	if err := json.Unmarshal(req.Payload, payload); err != nil {
		apiErr := ErrMalformedBody.Withf("could not decode payload: %v", err)
		return common.Address{}, &apiErr
	}
	if payload.chainID() != a.info.ChainID {
		apiErr := ErrChainIDMismatch.Withf("got %d, expected %d", payload.chainID(), a.info.ChainID)
		return common.Address{}, &apiErr
	}
	return caller, nil
}

func (p *NewPoll) chainID() uint64        { return p.ChainID }
func (v *Vote) chainID() uint64           { return v.ChainID }
func (e *EndPoll) chainID() uint64        { return e.ChainID }
func (p *PublishResults) chainID() uint64 { return p.ChainID }
