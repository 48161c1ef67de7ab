package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/ledger"
)

var (
	// ErrDatastoreUnavailable marks a candidate whose reads or unit of work
	// failed against the datastore. Nothing was persisted for it.
	ErrDatastoreUnavailable = eris.New("pipeline: datastore unavailable")

	// ErrInsufficientCredit is returned when an accepted candidate cannot be
	// paid for. No lead and no ledger entry are written.
	ErrInsufficientCredit = ledger.ErrInsufficientCredit
)

// datastoreError matches ErrDatastoreUnavailable while keeping the driver
// error in the chain, so transient causes still classify as transient.
type datastoreError struct {
	op  string
	err error
}

func (e *datastoreError) Error() string {
	return "pipeline: datastore unavailable: " + e.op + ": " + e.err.Error()
}

func (e *datastoreError) Unwrap() error { return e.err }

func (e *datastoreError) Is(target error) bool {
	return target == ErrDatastoreUnavailable
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDatastoreUnavailable) {
		return err
	}
	return &datastoreError{op: op, err: err}
}
