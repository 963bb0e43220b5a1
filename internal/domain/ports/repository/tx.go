package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function
// within a database transaction, passing the underlying transaction
// handle via `tx`.
//
// Repositories accept a Tx so an event append and the matching
// operation-row update can share one transaction: the engine's
// dual-write (denormalized state + event log) must commit or fail as a
// unit. Repositories MUST gracefully accept a nil Tx for the
// non-transactional path.
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
