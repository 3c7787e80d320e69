package match_ws

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charleschow/cricket-live/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxJournalBytes     int64 = 512 << 20 // 512 MiB
	journalEvictBatch         = 200
	journalVacuumEvery        = 50
	journalQueueSize          = 1024
)

// Journal captures raw inbound frames in a FIFO SQLite database for
// debugging feed issues. It is write-only from the engine's point of view:
// nothing is ever loaded back into match state.
type Journal struct {
	db           *sql.DB
	queue        chan journalRow
	wg           sync.WaitGroup
	closeMu      sync.RWMutex
	closed       bool
	cachedSize   int64
	evictCounter int
}

type journalRow struct {
	sessionID string
	event     string
	matchID   string
	received  time.Time
	raw       []byte
}

// JournalFrame is one stored frame, as returned by ReadJournal.
type JournalFrame struct {
	ID        int64
	SessionID string
	Event     string
	MatchID   string
	Received  string
	ByteSize  int
	Raw       []byte
}

func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 { // 2 = INCREMENTAL
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("journal: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS ws_frames (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT    NOT NULL,
			event      TEXT    NOT NULL,
			match_id   TEXT    NOT NULL,
			received   TEXT    NOT NULL,
			byte_size  INTEGER NOT NULL,
			raw        BLOB    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wsf_match ON ws_frames(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_wsf_event ON ws_frames(event)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}

	var size int64
	if err := db.QueryRow(`SELECT COALESCE(SUM(byte_size), 0) FROM ws_frames`).Scan(&size); err != nil {
		db.Close()
		return nil, fmt.Errorf("read journal size: %w", err)
	}

	telemetry.Debugf("journal: opened %s  rows_bytes=%d", path, size)

	j := &Journal{
		db:         db,
		queue:      make(chan journalRow, journalQueueSize),
		cachedSize: size,
	}
	j.wg.Add(1)
	go j.writer()
	return j, nil
}

// Insert queues a raw frame for storage. Never blocks the read loop:
// when the queue is full the frame is dropped.
func (j *Journal) Insert(sessionID, event, matchID string, raw []byte) {
	if j == nil {
		return
	}
	row := journalRow{
		sessionID: sessionID,
		event:     event,
		matchID:   matchID,
		received:  time.Now().UTC(),
		raw:       append([]byte(nil), raw...),
	}
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- row:
	default:
		telemetry.Warnf("journal: queue full, dropping %s frame", event)
	}
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for row := range j.queue {
		size := int64(len(row.raw))
		_, err := j.db.Exec(
			`INSERT INTO ws_frames (session_id, event, match_id, received, byte_size, raw) VALUES (?, ?, ?, ?, ?, ?)`,
			row.sessionID, row.event, row.matchID, row.received.Format(time.RFC3339Nano), size, row.raw,
		)
		if err != nil {
			telemetry.Warnf("journal: insert failed: %v", err)
			continue
		}
		j.cachedSize += size
		if j.cachedSize > maxJournalBytes {
			j.evict()
		}
	}
}

func (j *Journal) evict() {
	for j.cachedSize > maxJournalBytes {
		var freed int64
		err := j.db.QueryRow(
			`WITH deleted AS (
				DELETE FROM ws_frames
				WHERE id IN (SELECT id FROM ws_frames ORDER BY id ASC LIMIT ?)
				RETURNING byte_size
			)
			SELECT COALESCE(SUM(byte_size), 0) FROM deleted`,
			journalEvictBatch,
		).Scan(&freed)
		if err != nil {
			telemetry.Warnf("journal: eviction query failed: %v", err)
			return
		}
		if freed == 0 {
			return
		}
		j.cachedSize -= freed
		j.evictCounter++
		if j.evictCounter%journalVacuumEvery == 0 {
			if _, err := j.db.Exec(`PRAGMA incremental_vacuum`); err != nil {
				telemetry.Warnf("journal: incremental_vacuum failed: %v", err)
			}
		}
	}
}

// Close drains queued frames and closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.closeMu.Unlock()

	j.wg.Wait()
	return j.db.Close()
}

// JournalFilter narrows ReadJournal. Zero values match everything.
type JournalFilter struct {
	MatchID  string
	Event    string
	Contains string
	Limit    int
}

// ReadJournal opens a journal read-only and returns the newest frames first.
func ReadJournal(path string, f JournalFilter) ([]JournalFrame, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	q := `SELECT id, session_id, event, match_id, received, byte_size, raw FROM ws_frames WHERE 1=1`
	var args []any
	if f.MatchID != "" {
		q += ` AND match_id = ?`
		args = append(args, f.MatchID)
	}
	if f.Event != "" {
		q += ` AND event = ?`
		args = append(args, f.Event)
	}
	if f.Contains != "" {
		q += ` AND CAST(raw AS TEXT) LIKE ?`
		args = append(args, "%"+f.Contains+"%")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalFrame
	for rows.Next() {
		var fr JournalFrame
		if err := rows.Scan(&fr.ID, &fr.SessionID, &fr.Event, &fr.MatchID, &fr.Received, &fr.ByteSize, &fr.Raw); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}
