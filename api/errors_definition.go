//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 40010, 40011 and 40013 exist, 40012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature      = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedPollID       = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed poll ID")}
	ErrPollNotFound          = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("poll not found")}
	ErrMalformedParam        = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrInvalidPollParams     = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid poll parameters")}
	ErrInvalidOptionIndex    = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid option index")}
	ErrInvalidEncryptedInput = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid encrypted input")}
	ErrPollNotStarted        = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll not started")}
	ErrPollNotOver           = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll not over")}
	ErrPollAlreadyEnded      = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll already ended")}
	ErrPollNotEnded          = Error{Code: 40015, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll not ended")}
	ErrResultsAlreadyPosted  = Error{Code: 40016, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("results already posted")}
	ErrAlreadyVoted          = Error{Code: 40017, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already voted")}
	ErrInvalidCleartextsSize = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid cleartexts size")}
	ErrInvalidKMSSignatures  = Error{Code: 40019, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("invalid KMS signatures")}
	ErrProtocolUnsupported   = Error{Code: 40020, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("protocol unsupported")}
	ErrChainIDMismatch       = Error{Code: 40021, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("chain ID mismatch")}
	ErrPollIDMismatch        = Error{Code: 40022, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("poll ID mismatch")}
	ErrHandleNotDecryptable  = Error{Code: 40023, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("handle not publicly decryptable")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrRelayerUnavailable         = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("relayer not available")}
)
