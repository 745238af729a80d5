package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"poll not found","code":40007}
func (e Error) MarshalJSON() ([]byte, error) {
	// json.Marshal doesn't call Err.Error()
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// UnmarshalJSON decodes the error body written by Write. The HTTP status
// is not part of the body and is left untouched.
func (e *Error) UnmarshalJSON(data []byte) error {
	var body struct {
		Err  string `json:"error"`
		Code int    `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	e.Err = errors.New(body.Err)
	e.Code = body.Code
	return nil
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes a JSON msg using APIerror.Message and APIerror.Code
// and passes that to ctx.Send()
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	// set the content type to JSON
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// Withf returns a copy of APIerror with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of APIerror with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of APIerror with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// engineErrors maps the poll engine errors to API errors. Order matters: an
// input rejected for its protocol version wraps both ErrInvalidInput and
// ErrProtocolUnsupported and must be reported as the latter.
var engineErrors = []struct {
	target error
	apiErr Error
}{
	{poll.ErrProtocolUnsupported, ErrProtocolUnsupported},
	{poll.ErrInvalidKMSSignatures, ErrInvalidKMSSignatures},
	{poll.ErrPollNotFound, ErrPollNotFound},
	{poll.ErrInvalidOptionsCount, ErrInvalidPollParams},
	{poll.ErrInvalidTimeRange, ErrInvalidPollParams},
	{poll.ErrEmptyName, ErrInvalidPollParams},
	{poll.ErrEmptyOption, ErrInvalidPollParams},
	{poll.ErrDuplicateOption, ErrInvalidPollParams},
	{poll.ErrInvalidOptionIndex, ErrInvalidOptionIndex},
	{poll.ErrInvalidCleartextsSize, ErrInvalidCleartextsSize},
	{poll.ErrInvalidInput, ErrInvalidEncryptedInput},
	{poll.ErrPollNotStarted, ErrPollNotStarted},
	{poll.ErrPollNotOver, ErrPollNotOver},
	{poll.ErrPollAlreadyEnded, ErrPollAlreadyEnded},
	{poll.ErrPollNotEnded, ErrPollNotEnded},
	{poll.ErrResultsAlreadyPosted, ErrResultsAlreadyPosted},
	{poll.ErrAlreadyVoted, ErrAlreadyVoted},
}

// engineError translates an error returned by the poll engine.
func engineError(err error) Error {
	for _, e := range engineErrors {
		if errors.Is(err, e.target) {
			return e.apiErr.WithErr(err)
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}
