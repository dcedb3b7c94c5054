// Package indexdb mirrors the JSONL session logs into a queryable SQLite
// database. Writes are queued to a single writer goroutine and dropped when
// the queue is full; the JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"poseplanner.ai/internal/session"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession atomic.Uint64
	dropStep    atomic.Uint64
	dropAttempt atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqStep
	reqAttempt
)

type req struct {
	kind reqKind

	session session.SessionEntry
	step    session.StepEntry
	attempt session.AttemptEntry
}

var (
	_ session.SessionLogger = (*SQLiteIndex)(nil)
	_ session.StepLogger    = (*SQLiteIndex)(nil)
	_ session.AttemptLogger = (*SQLiteIndex)(nil)
)

// Stats reports queue pressure.
type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropSessionTotal uint64
	DropStepTotal    uint64
	DropAttemptTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			steps INTEGER NOT NULL,
			ended INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			time TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			object_id TEXT,
			success INTEGER NOT NULL,
			rejected TEXT,
			nav_status TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, step)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_action ON steps(action, success);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			object_id TEXT,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			yaw REAL NOT NULL,
			horizon REAL NOT NULL,
			source TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (session_id, step, object_id, attempt)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_object ON attempts(object_id, success);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropSessionTotal: s.dropSession.Load(),
		DropStepTotal:    s.dropStep.Load(),
		DropAttemptTotal: s.dropAttempt.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteSession(e session.SessionEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqSession, session: e}, &s.dropSession)
	return nil
}

func (s *SQLiteIndex) WriteStep(e session.StepEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqStep, step: e}, &s.dropStep)
	return nil
}

func (s *SQLiteIndex) WriteAttempt(e session.AttemptEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAttempt, attempt: e}, &s.dropAttempt)
	return nil
}

// UpsertConfig stores the canonical JSON of a configuration actually applied
// (tuning, overrides) keyed by name, with its sha256 digest.
func (s *SQLiteIndex) UpsertConfig(name string, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		name, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertSession, _ := s.db.Prepare(`INSERT INTO sessions(session_id,task_id,started_at,ended_at,steps,ended) VALUES(?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at=COALESCE(NULLIF(excluded.ended_at,''), sessions.ended_at),
			steps=excluded.steps,
			ended=excluded.ended`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(session_id,step,time,action,target,object_id,success,rejected,nav_status,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertAttempt, _ := s.db.Prepare(`INSERT OR REPLACE INTO attempts(session_id,step,attempt,object_id,x,y,z,yaw,horizon,source,success,error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertSession, insertStep, insertAttempt} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			e := r.session
			exec(upsertSession, e.SessionID, e.TaskID, e.StartedAt, e.EndedAt, e.Steps, boolInt(e.Ended))

		case reqStep:
			e := r.step
			raw, _ := json.Marshal(e)
			var navStatus string
			if e.Navigation != nil {
				navStatus = string(e.Navigation.Status)
			}
			exec(insertStep, e.SessionID, e.Step, e.Time, e.Action, e.Target, e.ObjectID,
				boolInt(e.Success), e.Rejected, navStatus, string(raw))

		case reqAttempt:
			e := r.attempt
			exec(insertAttempt, e.SessionID, e.Step, e.Attempt, e.ObjectID,
				e.Position.X, e.Position.Y, e.Position.Z, e.Rotation.Y, e.Horizon,
				string(e.Source), boolInt(e.Success), e.Error)
		}
		// Commit once the queue drains so UpsertConfig never waits on an idle tx.
		if tx != nil && (len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
