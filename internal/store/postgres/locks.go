package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"
)

// Advisory lock keys use the two-int form. The index lock is (indexLockClass,
// 0); document id is (documentLockClass, int32(id)). Ids beyond the int32
// range share keys, which only serializes unrelated documents.
const (
	indexLockClass    = 0x4e49
	documentLockClass = 0x4e4a

	unlockTimeout = 5 * time.Second
)

type advisoryLock struct {
	query  string
	class  int32
	object int32
}

// LockIndex takes the exclusive index lock. Every process sharing the
// database waits, so a rebuild never interleaves with writers or searches
// running elsewhere.
func (s *Store) LockIndex(ctx context.Context) (func(), error) {
	return s.hold(ctx, advisoryLock{`SELECT pg_advisory_lock($1::int, $2::int)`, indexLockClass, 0})
}

func (s *Store) RLockIndex(ctx context.Context) (func(), error) {
	return s.hold(ctx, advisoryLock{`SELECT pg_advisory_lock_shared($1::int, $2::int)`, indexLockClass, 0})
}

func (s *Store) LockDocument(ctx context.Context, id int64) (func(), error) {
	return s.hold(ctx,
		advisoryLock{`SELECT pg_advisory_lock_shared($1::int, $2::int)`, indexLockClass, 0},
		advisoryLock{`SELECT pg_advisory_lock($1::int, $2::int)`, documentLockClass, int32(id)},
	)
}

// hold takes locks in order on one session of the lock pool and keeps the
// session until release.
func (s *Store) hold(ctx context.Context, locks ...advisoryLock) (func(), error) {
	conn, err := s.client.Locks.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserving lock session: %w", err)
	}
	for _, l := range locks {
		if _, err := conn.ExecContext(ctx, l.query, l.class, l.object); err != nil {
			// A cancelled wait may still have been granted server side.
			releaseSession(conn)
			return nil, fmt.Errorf("acquiring advisory lock (%d,%d): %w", l.class, l.object, err)
		}
	}
	return func() { releaseSession(conn) }, nil
}

// releaseSession drops every advisory lock of the session and returns it to
// the pool. If the unlock fails the session is discarded, which makes the
// server release the locks when the connection closes.
func releaseSession(conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock_all()`); err != nil {
		slog.Warn("advisory unlock failed; discarding session", "error", err)
		conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	conn.Close()
}
