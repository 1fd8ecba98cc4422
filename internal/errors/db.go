package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors from the profile store to AppError instances:
// - pgx.ErrNoRows → NotFound
// - context deadline/cancellation → Timeout/Canceled
// - connection-level failures (connection exception class) → Internal
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "profile store query timed out",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "profile store query was canceled",
			Cause:   err,
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "profile not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return &AppError{
				Code:    ErrCodeInternal,
				Message: "profile store connection failed",
				Cause:   err,
			}
		case pgErr.Code == pgerrcode.QueryCanceled:
			return &AppError{
				Code:    ErrCodeTimeout,
				Message: "profile store query canceled by server",
				Cause:   err,
			}
		case pgErr.Code == pgerrcode.UndefinedTable, pgErr.Code == pgerrcode.UndefinedColumn:
			return &AppError{
				Code:    ErrCodeInternal,
				Message: "profile store schema mismatch",
				Cause:   err,
			}
		}
	}

	return err
}
