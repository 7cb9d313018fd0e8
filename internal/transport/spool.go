package transport

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSpoolClosed is returned by spool operations after Close.
var ErrSpoolClosed = errors.New("transport: spool closed")

const spoolSchema = `CREATE TABLE IF NOT EXISTS outbound (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  kind        TEXT NOT NULL,
  body        BLOB NOT NULL DEFAULT x'',
  enqueued_at TEXT NOT NULL
);`

// Spool is the durable store-and-forward queue backing [Link.SendOrQueue].
// Payloads enqueued while the capture device is unreachable survive daemon
// restarts and are drained in FIFO order once the link comes back.
//
// All methods are safe for concurrent use.
type Spool struct {
	db *sql.DB
}

// OpenSpool opens (creating if necessary) the spool database at path.
// Use ":memory:" for an ephemeral spool in tests.
func OpenSpool(path string) (*Spool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("spool: open %q: %w", path, err)
	}
	if _, err := db.Exec(spoolSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spool: apply schema: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spool: set WAL: %w", err)
	}
	return &Spool{db: db}, nil
}

// Close releases the underlying database.
func (s *Spool) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("spool: close: %w", err)
	}
	return nil
}

// Enqueue appends out to the back of the queue.
func (s *Spool) Enqueue(out Outbound) error {
	const q = `INSERT INTO outbound (kind, body, enqueued_at) VALUES (?, ?, ?)`
	body := []byte(out.Body)
	if body == nil {
		// The driver binds a nil slice as SQL NULL, which would bypass the
		// column's DEFAULT x'' and trip the NOT NULL constraint.
		body = []byte{}
	}
	_, err := s.db.Exec(q, out.Kind, body, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return wrapSpoolErr("enqueue", err)
	}
	return nil
}

// Next returns the oldest queued payload without removing it. ok is false
// when the queue is empty. Call [Spool.Ack] with the returned id once the
// payload was delivered.
func (s *Spool) Next() (id int64, out Outbound, ok bool, err error) {
	const q = `SELECT id, kind, body FROM outbound ORDER BY id LIMIT 1`
	var body []byte
	err = s.db.QueryRow(q).Scan(&id, &out.Kind, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, Outbound{}, false, nil
	}
	if err != nil {
		return 0, Outbound{}, false, wrapSpoolErr("next", err)
	}
	out.Body = body
	return id, out, true, nil
}

// Ack removes a delivered payload from the queue.
func (s *Spool) Ack(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM outbound WHERE id = ?`, id); err != nil {
		return wrapSpoolErr("ack", err)
	}
	return nil
}

// Depth returns the number of queued payloads.
func (s *Spool) Depth() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM outbound`).Scan(&n); err != nil {
		return 0, wrapSpoolErr("depth", err)
	}
	return n, nil
}

func wrapSpoolErr(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("spool: %s: %w", op, ErrSpoolClosed)
	}
	return fmt.Errorf("spool: %s: %w", op, err)
}
