package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

// sqlStateCodes maps exact SQLSTATE values to canonical codes.
var sqlStateCodes = map[string]string{
	"23505": docstore.CodeAlreadyExists,
	"42501": docstore.CodePermissionDenied,
	"42P01": docstore.CodeFailedPrecondition,
	"57014": docstore.CodeCancelled,
	"57P01": docstore.CodeUnavailable,
	"57P02": docstore.CodeUnavailable,
	"57P03": docstore.CodeUnavailable,
	"40001": docstore.CodeAborted,
	"40P01": docstore.CodeAborted,
	"XX000": docstore.CodeInternal,
	"XX001": docstore.CodeDataLoss,
	"XX002": docstore.CodeDataLoss,
}

// sqlStateClasses maps two-character SQLSTATE classes to canonical codes.
var sqlStateClasses = map[string]string{
	"08": docstore.CodeUnavailable,
	"22": docstore.CodeInvalidArgument,
	"23": docstore.CodeFailedPrecondition,
	"28": docstore.CodeUnauthenticated,
	"53": docstore.CodeResourceExhausted,
	"54": docstore.CodeResourceExhausted,
}

// CodeForSQLState returns the canonical code for a SQLSTATE.
func CodeForSQLState(state string) string {
	if code, ok := sqlStateCodes[state]; ok {
		return code
	}
	if len(state) >= 2 {
		if code, ok := sqlStateClasses[state[:2]]; ok {
			return code
		}
	}
	return docstore.CodeInternal
}

// mapError converts driver errors into *docstore.Error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if docstore.CodeOf(err) != "" {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return docstore.WrapError(CodeForSQLState(pgErr.Code), err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return docstore.WrapError(CodeForSQLState(string(pqErr.Code)), err)
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return docstore.WrapError(docstore.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return docstore.WrapError(docstore.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return docstore.WrapError(docstore.CodeCancelled, err)
	case errors.Is(err, driver.ErrBadConn):
		return docstore.WrapError(docstore.CodeUnavailable, err)
	case errors.Is(err, sql.ErrConnDone):
		return docstore.WrapError(docstore.CodeFailedPrecondition, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return docstore.WrapError(docstore.CodeDeadlineExceeded, err)
		}
		return docstore.WrapError(docstore.CodeUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return docstore.WrapError(docstore.CodeUnavailable, err)
	}

	return docstore.WrapError(docstore.CodeUnknown, err)
}
