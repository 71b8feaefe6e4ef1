// Package errors provides cleanup helpers that log instead of dropping errors.
package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes closer and logs a failure. Use it in defer statements.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRollback rolls back tx and logs a failure. sql.ErrTxDone, returned
// after a successful commit, is ignored.
func DeferRollback(logger zerolog.Logger, tx *sql.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn().Err(err).Msg("transaction rollback failed")
	}
}

// Flusher is implemented by buffered writers.
type Flusher interface {
	Flush() error
}

// CloseWith closes closer and, if *errp is nil, stores the close error in it.
// Use it in defer statements for writers whose Close reports lost data.
func CloseWith(errp *error, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("%s: %w", msg, err)
	}
}

// FlushWith flushes f and, if *errp is nil, stores the flush error in it.
func FlushWith(errp *error, f Flusher, msg string) {
	if err := f.Flush(); err != nil && *errp == nil {
		*errp = fmt.Errorf("%s: %w", msg, err)
	}
}

// Must panics if err is not nil. Use only during initialization.
func Must(err error, msg string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", msg, err))
	}
}
