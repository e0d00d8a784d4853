package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitFailDriver hands out transactions whose COMMIT always fails, the way
// a serialization conflict surfaces only at commit time.
type commitFailDriver struct{}

func (d *commitFailDriver) Open(name string) (driver.Conn, error) {
	return &commitFailConn{}, nil
}

type commitFailConn struct{}

func (c *commitFailConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *commitFailConn) Close() error { return nil }

func (c *commitFailConn) Begin() (driver.Tx, error) {
	return commitFailTx{}, nil
}

type commitFailTx struct{}

func (commitFailTx) Commit() error {
	return errors.New("could not serialize access due to concurrent update")
}

func (commitFailTx) Rollback() error { return nil }

func init() {
	sql.Register("commitfail", &commitFailDriver{})
}

func TestTransaction_CommitFailureIsReturned(t *testing.T) {
	db, err := sql.Open("commitfail", "")
	require.NoError(t, err)
	repo := &BaseRepository{db: sqlx.NewDb(db, "commitfail")}

	err = repo.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return nil
	})

	require.Error(t, err, "a failed commit must not report success")
	assert.Contains(t, err.Error(), "could not serialize access")
}

func TestTransaction_FnErrorRollsBack(t *testing.T) {
	db, err := sql.Open("commitfail", "")
	require.NoError(t, err)
	repo := &BaseRepository{db: sqlx.NewDb(db, "commitfail")}

	boom := errors.New("unit of work failed")
	err = repo.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})

	// The unit's own error wins; the rollback path never reaches commit.
	assert.ErrorIs(t, err, boom)
}
