// Package chess adapts a chess rules engine to the needs of head resolution:
// counting plies in a PGN and checking that one PGN is a legal one-move
// continuation of another.
package chess
