// Package storage persists profiler snapshots in DuckDB.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	vmerrors "github.com/coral-mesh/vmprof/internal/errors"
	"github.com/coral-mesh/vmprof/internal/logging"
	"github.com/coral-mesh/vmprof/internal/profiler"
)

// ErrSessionNotFound is returned when a session id has no stored snapshot.
var ErrSessionNotFound = errors.New("session not found")

// Session describes one stored snapshot.
type Session struct {
	ID          string
	Script      string
	SavedAt     time.Time
	Elapsed     time.Duration
	Detached    bool
	CallGraph   bool
	Fingerprint uint64
	Functions   int
	Anomalies   profiler.Anomalies
}

// Store keeps one snapshot per profiling session. Saving a session again
// replaces its previous snapshot.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewStore creates a store on db and initializes its schema.
func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logging.WithComponent(logger, "profile_storage"),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	// No unique constraints: a save deletes and reinserts a session's rows
	// in one transaction, which DuckDB rejects for unique keys.
	schema := `
		CREATE TABLE IF NOT EXISTS profile_sessions (
			session_id       TEXT      NOT NULL,
			script           TEXT      NOT NULL,
			saved_at         TIMESTAMP NOT NULL,
			elapsed_ns       BIGINT    NOT NULL,
			detached         BOOLEAN   NOT NULL,
			call_graph       BOOLEAN   NOT NULL,
			fingerprint      BIGINT    NOT NULL,
			desyncs          BIGINT    NOT NULL DEFAULT 0,
			unmatched_leaves BIGINT    NOT NULL DEFAULT 0,
			clock_anomalies  BIGINT    NOT NULL DEFAULT 0,
			force_closed     BIGINT    NOT NULL DEFAULT 0,
			discarded        BIGINT    NOT NULL DEFAULT 0,
			duplicate_enters BIGINT    NOT NULL DEFAULT 0
		);

		-- seq keeps the order functions were first observed in.
		CREATE TABLE IF NOT EXISTS function_stats (
			session_id TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			address    BIGINT  NOT NULL,
			name       TEXT    NOT NULL,
			kind       TEXT    NOT NULL,
			num_calls  BIGINT  NOT NULL,
			total_ns   BIGINT  NOT NULL,
			child_ns   BIGINT  NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_function_stats_session ON function_stats (session_id);

		-- A NULL caller is a top-level call.
		CREATE TABLE IF NOT EXISTS call_edges (
			session_id TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			caller     BIGINT,
			callee     BIGINT  NOT NULL,
			num_calls  BIGINT  NOT NULL,
			total_ns   BIGINT  NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_call_edges_session ON call_edges (session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.logger.Debug().Msg("Profile storage schema initialized")
	return nil
}

// SaveSnapshot stores snap under its session id. It reports false without
// writing when the stored snapshot already has the same fingerprint.
func (s *Store) SaveSnapshot(ctx context.Context, script string, snap profiler.Snapshot) (bool, error) {
	if snap.SessionID == "" {
		return false, errors.New("snapshot has no session id")
	}
	fingerprint := Fingerprint(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM profile_sessions WHERE session_id = ?", snap.SessionID).Scan(&stored)
	switch {
	case err == nil && uint64(stored) == fingerprint:
		s.logger.Debug().Str("session_id", snap.SessionID).Msg("Snapshot unchanged, skipping save")
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to query session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer vmerrors.DeferRollback(s.logger, tx)

	for _, table := range []string{"call_edges", "function_stats", "profile_sessions"} {
		// #nosec G202 - table names are constants.
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", snap.SessionID); err != nil {
			return false, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	a := snap.Anomalies
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profile_sessions (
			session_id, script, saved_at, elapsed_ns, detached, call_graph, fingerprint,
			desyncs, unmatched_leaves, clock_anomalies, force_closed, discarded, duplicate_enters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, script, time.Now().UTC(), int64(snap.Elapsed), snap.Detached, snap.CallGraphEnabled,
		int64(fingerprint), a.Desyncs, a.UnmatchedLeaves, a.ClockAnomalies, a.ForceClosed, a.Discarded, a.DuplicateEnters,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}

	for i, fs := range snap.Functions() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO function_stats (session_id, seq, address, name, kind, num_calls, total_ns, child_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SessionID, i, int64(fs.Function.Address), fs.Function.Name, fs.Function.Kind.String(),
			fs.NumCalls, int64(fs.TotalTime), int64(fs.ChildTime),
		)
		if err != nil {
			return false, fmt.Errorf("failed to store function %s: %w", fs.Function.Name, err)
		}
	}

	for i, e := range snap.Edges() {
		var caller sql.NullInt64
		if e.Caller != nil {
			caller = sql.NullInt64{Int64: int64(e.Caller.Address), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_edges (session_id, seq, caller, callee, num_calls, total_ns)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.SessionID, i, caller, int64(e.Callee.Address), e.NumCalls, int64(e.TotalTime),
		)
		if err != nil {
			return false, fmt.Errorf("failed to store call edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Str("session_id", snap.SessionID).
		Str("script", script).
		Int("functions", snap.Statistics.Len()).
		Msg("Stored profile snapshot")
	return true, nil
}

// ListSessions returns stored sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.script, s.saved_at, s.elapsed_ns, s.detached, s.call_graph, s.fingerprint,
			s.desyncs, s.unmatched_leaves, s.clock_anomalies, s.force_closed, s.discarded, s.duplicate_enters,
			(SELECT COUNT(*) FROM function_stats f WHERE f.session_id = s.session_id)
		FROM profile_sessions s
		ORDER BY s.saved_at DESC, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows, true)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, withCount bool) (Session, error) {
	var (
		sess        Session
		elapsed     int64
		fingerprint int64
		count       int64
	)
	a := &sess.Anomalies
	dest := []any{
		&sess.ID, &sess.Script, &sess.SavedAt, &elapsed, &sess.Detached, &sess.CallGraph, &fingerprint,
		&a.Desyncs, &a.UnmatchedLeaves, &a.ClockAnomalies, &a.ForceClosed, &a.Discarded, &a.DuplicateEnters,
	}
	if withCount {
		dest = append(dest, &count)
	}
	if err := row.Scan(dest...); err != nil {
		return Session{}, err
	}
	sess.Elapsed = time.Duration(elapsed)
	sess.Fingerprint = uint64(fingerprint)
	sess.Functions = int(count)
	return sess, nil
}

// LoadSnapshot rebuilds the snapshot stored for sessionID.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (Session, profiler.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, script, saved_at, elapsed_ns, detached, call_graph, fingerprint,
			desyncs, unmatched_leaves, clock_anomalies, force_closed, discarded, duplicate_enters
		FROM profile_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, profiler.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, profiler.Snapshot{}, fmt.Errorf("failed to query session: %w", err)
	}

	stats, err := s.loadFunctions(ctx, sessionID)
	if err != nil {
		return Session{}, profiler.Snapshot{}, err
	}
	sess.Functions = stats.Len()

	graph, err := s.loadEdges(ctx, sessionID, stats)
	if err != nil {
		return Session{}, profiler.Snapshot{}, err
	}

	return sess, profiler.Snapshot{
		SessionID:        sess.ID,
		Statistics:       stats,
		CallGraph:        graph,
		Anomalies:        sess.Anomalies,
		Elapsed:          sess.Elapsed,
		Detached:         sess.Detached,
		CallGraphEnabled: sess.CallGraph,
	}, nil
}

func (s *Store) loadFunctions(ctx context.Context, sessionID string) (*profiler.Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, name, kind, num_calls, total_ns, child_ns
		FROM function_stats WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := profiler.NewStatistics()
	for rows.Next() {
		var (
			address, total, child int64
			kind                  string
			fs                    profiler.FunctionStatistics
		)
		if err := rows.Scan(&address, &fs.Function.Name, &kind, &fs.NumCalls, &total, &child); err != nil {
			return nil, fmt.Errorf("failed to scan function row: %w", err)
		}
		fs.Function.Address = profiler.Address(address)
		fs.TotalTime = time.Duration(total)
		fs.ChildTime = time.Duration(child)
		if fs.Function.Kind, err = profiler.ParseKind(kind); err != nil {
			s.logger.Warn().Err(err).Str("function", fs.Function.Name).Msg("Unknown function kind")
		}
		stats.Restore(fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating functions: %w", err)
	}
	return stats, nil
}

func (s *Store) loadEdges(ctx context.Context, sessionID string, stats *profiler.Statistics) (*profiler.CallGraph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT caller, callee, num_calls, total_ns
		FROM call_edges WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query call edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	graph := profiler.NewCallGraph(stats)
	for rows.Next() {
		var (
			caller                 sql.NullInt64
			callee, calls, totalNs int64
		)
		if err := rows.Scan(&caller, &callee, &calls, &totalNs); err != nil {
			return nil, fmt.Errorf("failed to scan call edge: %w", err)
		}
		var from *profiler.Address
		if caller.Valid {
			a := profiler.Address(caller.Int64)
			from = &a
		}
		graph.RestoreEdge(from, profiler.Address(callee), calls, time.Duration(totalNs))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call edges: %w", err)
	}
	return graph, nil
}

// DeleteSession removes a stored session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer vmerrors.DeferRollback(s.logger, tx)

	var n int64
	for _, table := range []string{"call_edges", "function_stats", "profile_sessions"} {
		// #nosec G202 - table names are constants.
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		n, _ = res.RowsAffected()
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return tx.Commit()
}
