// Package store is the append-only log of verified events and the game
// projections derived from it.
//
// Events enter through Store.Ingest, which verifies, stores and classifies
// them in one synchronous pass. Projections are written by independent
// rules and never mutated afterwards. Backends persist both.
//
// # Projections
//
//   - GameStart: a game-kind event with a zero-ply PGN and no reply marker
//   - GameMove: a game-kind event with exactly one root and one reply reference
//   - GameChat: a chat-kind event referencing a stored game start
//
// A redelivered event is reported as a duplicate, but its projections are
// written again. Writes are idempotent, so this only fills in what an
// earlier failed ingest left out.
//
// # Basic Usage
//
//	s := store.New(store.NewMemoryBackend())
//	defer s.Close()
//
//	s.OnChange(func(c store.Change) { ... })
//	res, err := s.Ingest(ctx, ev)
//
// Use NewSQLiteBackend for state that survives restarts.
package store
