package services

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var errPermissionExists = errors.New("permission store: pair already exists")

// Vendor codes for constraint violations that gorm does not translate on every driver.
const (
	pgUniqueViolation    = "23505"
	pgCheckViolation     = "23514"
	mysqlDuplicateEntry  = 1062
	mysqlCheckConstraint = 3819
)

// translatePermissionWriteError maps a failed insert onto the workflow's own errors. A duplicate
// owner/requester pair becomes errPermissionExists and a self pair becomes ErrContactSelfRequest.
func translatePermissionWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errPermissionExists
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errPermissionExists
		case pgCheckViolation:
			return ErrContactSelfRequest
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return errPermissionExists
		case mysqlCheckConstraint:
			return ErrContactSelfRequest
		}
	}

	return fmt.Errorf("permission store: create: %w", err)
}
