package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// SQLiteBackend persists events and projections to SQLite.
// It is suitable for single-process use. Writes are serialized by a single
// connection; the seq column preserves insertion order per table.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Backend = (*SQLiteBackend)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		pubkey TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		tags TEXT NOT NULL,
		content TEXT NOT NULL,
		sig TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	`CREATE TABLE IF NOT EXISTS game_starts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE REFERENCES events(id)
	)`,
	`CREATE TABLE IF NOT EXISTS game_start_tags (
		start_id TEXT NOT NULL REFERENCES game_starts(id),
		position INTEGER NOT NULL,
		ref TEXT NOT NULL,
		PRIMARY KEY (start_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_game_start_tags_ref ON game_start_tags(ref)`,
	`CREATE TABLE IF NOT EXISTS game_moves (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE REFERENCES events(id),
		game_id TEXT NOT NULL,
		parent_move_id TEXT NOT NULL,
		move_counter INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_game_moves_game ON game_moves(game_id, move_counter)`,
	`CREATE TABLE IF NOT EXISTS game_chats (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE REFERENCES events(id),
		game_id TEXT NOT NULL,
		previous_chat_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_game_chats_game ON game_chats(game_id)`,
}

const eventColumns = `e.id, e.pubkey, e.created_at, e.kind, e.tags, e.content, e.sig`

// NewSQLiteBackend opens or creates a database.
// The path should be a file path (e.g., "./nostrchess.db") or ":memory:" for testing.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteBackend{db: db}, nil
}

// PutEvent implements Backend.
func (s *SQLiteBackend) PutEvent(ev codec.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	tags := ev.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO events (id, pubkey, created_at, kind, tags, content, sig)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.PubKey, int64(ev.CreatedAt), ev.Kind, string(rawTags), ev.Content, ev.Sig)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return inserted(res)
}

// GetEvent implements Backend.
func (s *SQLiteBackend) GetEvent(id string) (codec.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return codec.Event{}, ErrClosed
	}

	ev, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return codec.Event{}, ErrNotFound
	}
	if err != nil {
		return codec.Event{}, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

// EventsByKind implements Backend.
func (s *SQLiteBackend) EventsByKind(kinds ...int) ([]codec.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	args := make([]any, len(kinds))
	if len(kinds) > 0 {
		query += ` WHERE e.kind IN (?` + strings.Repeat(`, ?`, len(kinds)-1) + `)`
		for i, k := range kinds {
			args[i] = k
		}
	}
	query += ` ORDER BY e.seq`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []codec.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// PutGameStart implements Backend.
func (s *SQLiteBackend) PutGameStart(p GameStart) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT OR IGNORE INTO game_starts (id) VALUES (?)`, p.ID())
	if err != nil {
		return false, fmt.Errorf("insert game start: %w", err)
	}
	ok, err := inserted(res)
	if err != nil || !ok {
		return false, err
	}
	for i, ref := range p.EventTags {
		if _, err := tx.Exec(`
			INSERT INTO game_start_tags (start_id, position, ref) VALUES (?, ?, ?)
		`, p.ID(), i, ref); err != nil {
			return false, fmt.Errorf("insert game start tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// GetGameStart implements Backend.
func (s *SQLiteBackend) GetGameStart(id string) (GameStart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return GameStart{}, ErrClosed
	}

	ev, err := scanEvent(s.db.QueryRow(`
		SELECT `+eventColumns+`
		FROM game_starts g JOIN events e ON e.id = g.id
		WHERE g.id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return GameStart{}, ErrNotFound
	}
	if err != nil {
		return GameStart{}, fmt.Errorf("load game start: %w", err)
	}

	tags, err := s.startTags(id)
	if err != nil {
		return GameStart{}, err
	}
	return GameStart{Event: ev, EventTags: tags}, nil
}

// GameStartsByTag implements Backend.
func (s *SQLiteBackend) GameStartsByTag(ref string) ([]GameStart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`
		SELECT `+eventColumns+`
		FROM game_starts g JOIN events e ON e.id = g.id
		WHERE EXISTS (SELECT 1 FROM game_start_tags t WHERE t.start_id = g.id AND t.ref = ?)
		ORDER BY g.seq
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("list game starts: %w", err)
	}
	var events []codec.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan game start: %w", err)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game starts: %w", err)
	}

	// Tags are loaded after the cursor closes; the single connection cannot
	// serve a nested query.
	out := make([]GameStart, 0, len(events))
	for _, ev := range events {
		tags, err := s.startTags(ev.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, GameStart{Event: ev, EventTags: tags})
	}
	return out, nil
}

func (s *SQLiteBackend) startTags(id string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT ref FROM game_start_tags WHERE start_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list game start tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan game start tag: %w", err)
		}
		tags = append(tags, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game start tags: %w", err)
	}
	return tags, nil
}

// PutGameMove implements Backend.
func (s *SQLiteBackend) PutGameMove(p GameMove) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO game_moves (id, game_id, parent_move_id, move_counter)
		VALUES (?, ?, ?, ?)
	`, p.ID(), p.GameID, p.ParentMoveID, p.MoveCounter)
	if err != nil {
		return false, fmt.Errorf("insert game move: %w", err)
	}
	return inserted(res)
}

const moveQuery = `
	SELECT ` + eventColumns + `, m.game_id, m.parent_move_id, m.move_counter
	FROM game_moves m JOIN events e ON e.id = m.id
`

// GetGameMove implements Backend.
func (s *SQLiteBackend) GetGameMove(id string) (GameMove, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return GameMove{}, ErrClosed
	}

	p, err := scanMove(s.db.QueryRow(moveQuery+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return GameMove{}, ErrNotFound
	}
	if err != nil {
		return GameMove{}, fmt.Errorf("load game move: %w", err)
	}
	return p, nil
}

// GameMoves implements Backend.
func (s *SQLiteBackend) GameMoves(gameID string) ([]GameMove, error) {
	return s.queryMoves(moveQuery+` WHERE m.game_id = ? ORDER BY m.seq`, gameID)
}

// GameMovesAt implements Backend.
func (s *SQLiteBackend) GameMovesAt(gameID string, counter int) ([]GameMove, error) {
	return s.queryMoves(moveQuery+` WHERE m.game_id = ? AND m.move_counter = ? ORDER BY m.seq`, gameID, counter)
}

func (s *SQLiteBackend) queryMoves(query string, args ...any) ([]GameMove, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list game moves: %w", err)
	}
	defer rows.Close()

	var out []GameMove
	for rows.Next() {
		p, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game move: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game moves: %w", err)
	}
	return out, nil
}

// PutGameChat implements Backend.
func (s *SQLiteBackend) PutGameChat(p GameChat) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO game_chats (id, game_id, previous_chat_id) VALUES (?, ?, ?)
	`, p.ID(), p.GameID, p.PreviousChatID)
	if err != nil {
		return false, fmt.Errorf("insert game chat: %w", err)
	}
	return inserted(res)
}

// GameChats implements Backend.
func (s *SQLiteBackend) GameChats(gameID string, since, until nostr.Timestamp) ([]GameChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`
		SELECT `+eventColumns+`, c.game_id, c.previous_chat_id
		FROM game_chats c JOIN events e ON e.id = c.id
		WHERE c.game_id = ? AND e.created_at >= ? AND (? = 0 OR e.created_at <= ?)
		ORDER BY c.seq
	`, gameID, int64(since), int64(until), int64(until))
	if err != nil {
		return nil, fmt.Errorf("list game chats: %w", err)
	}
	defer rows.Close()

	var out []GameChat
	for rows.Next() {
		var p GameChat
		ev, err := scanEvent(rows, &p.GameID, &p.PreviousChatID)
		if err != nil {
			return nil, fmt.Errorf("scan game chat: %w", err)
		}
		p.Event = ev
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game chats: %w", err)
	}
	return out, nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads the event columns followed by any extra destinations.
func scanEvent(row scanner, extra ...any) (codec.Event, error) {
	var (
		ev        codec.Event
		createdAt int64
		rawTags   string
	)
	dest := append([]any{&ev.ID, &ev.PubKey, &createdAt, &ev.Kind, &rawTags, &ev.Content, &ev.Sig}, extra...)
	if err := row.Scan(dest...); err != nil {
		return codec.Event{}, err
	}
	ev.CreatedAt = nostr.Timestamp(createdAt)
	if err := json.Unmarshal([]byte(rawTags), &ev.Tags); err != nil {
		return codec.Event{}, fmt.Errorf("decode tags: %w", err)
	}
	return ev, nil
}

func scanMove(row scanner) (GameMove, error) {
	var p GameMove
	ev, err := scanEvent(row, &p.GameID, &p.ParentMoveID, &p.MoveCounter)
	if err != nil {
		return GameMove{}, err
	}
	p.Event = ev
	return p, nil
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
