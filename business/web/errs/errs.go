// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// FromDomain wraps an error returned by the blockchain packages with the
// status code that describes it. Errors the blockchain packages don't
// define are returned as they are and end up as internal errors.
func FromDomain(err error) error {
	var (
		be *database.BlockError
		te *database.TxError
		fe *database.ForkError
		se *database.SyncError
	)

	switch {
	case errors.Is(err, database.ErrDuplicateTransaction):
		return NewTrusted(err, http.StatusConflict)

	case errors.As(err, &be), errors.As(err, &te):
		return NewTrusted(err, http.StatusBadRequest)

	case errors.As(err, &fe), errors.Is(err, state.ErrStaleBlock):
		return NewTrusted(err, http.StatusConflict)

	case errors.As(err, &se):
		return NewTrusted(err, http.StatusGatewayTimeout)

	case errors.Is(err, state.ErrNoTransactions):
		return NewTrusted(err, http.StatusUnprocessableEntity)

	case errors.Is(err, state.ErrSnapshotCorrupt):
		return NewTrusted(err, http.StatusUnprocessableEntity)

	case errors.Is(err, state.ErrShutdown), errors.Is(err, worker.ErrShutdown):
		return NewTrusted(err, http.StatusServiceUnavailable)
	}

	return err
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap provides support for errors.Is and errors.As.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type RequestError exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the RequestError pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}
