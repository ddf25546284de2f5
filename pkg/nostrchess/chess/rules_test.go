package chess_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/chess"
)

func TestStandard_Plies(t *testing.T) {
	tests := []struct {
		pgn  string
		want int
	}{
		{"", 0},
		{"*", 0},
		{`[Event "Casual"]` + "\n[White \"a\"]\n\n*", 0},
		{"1. e4 *", 1},
		{"1. e4 e5 2. Nf3", 3},
		{"1.e4 e5 2.Nf3 Nc6 1-0", 4},
		{"1. e4 {best by test} e5 (1... c5 2. Nf3) 2. Nf3!? $1 Nc6 ; comment\n3. Bb5", 5},
		{"1. e4 2... Nc6", 2},
	}

	var rules chess.Standard
	for _, tt := range tests {
		assert.Equal(t, tt.want, rules.Plies(tt.pgn), tt.pgn)
	}
}

func TestStandard_Successor(t *testing.T) {
	var rules chess.Standard

	tests := []struct {
		name    string
		parent  string
		child   string
		wantErr error
	}{
		{"first move", "*", "1. e4 *", nil},
		{"reply", "1. e4 *", "1. e4 e5 *", nil},
		{"annotated reply", "1. e4 *", "1. e4 {ok} e5! *", nil},
		{"illegal move", "*", "1. e5 *", chess.ErrIllegalMove},
		{"two plies ahead", "*", "1. e4 e5 *", chess.ErrNotSuccessor},
		{"same length", "1. e4 *", "1. d4 *", chess.ErrNotSuccessor},
		{"divergent history", "1. e4 e5 *", "1. d4 e5 2. Nf3 *", chess.ErrNotSuccessor},
		{"backwards", "1. e4 e5 *", "1. e4 *", chess.ErrNotSuccessor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.Successor(tt.parent, tt.child)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStandard_SuccessorAfterMate(t *testing.T) {
	var rules chess.Standard
	mated := "1. f3 e5 2. g4 Qh4#"

	assert.Error(t, rules.Successor(mated, mated+" 3. a3"))
}

func TestStandard_FEN(t *testing.T) {
	var rules chess.Standard

	fen, err := rules.FEN("*")
	require.NoError(t, err)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", fen)

	fen, err = rules.FEN("1. e4")
	require.NoError(t, err)
	assert.Contains(t, fen, "4P3")
	assert.Contains(t, fen, " b ")

	_, err = rules.FEN("1. Ke3")
	assert.ErrorIs(t, err, chess.ErrIllegalMove)
}

func TestStandard_FENTag(t *testing.T) {
	var rules chess.Standard
	start := `[SetUp "1"]` + "\n" + `[FEN "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"]` + "\n\n*"
	child := `[SetUp "1"]` + "\n" + `[FEN "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"]` + "\n\n1. e4 *"

	assert.Equal(t, 0, rules.Plies(start))
	assert.NoError(t, rules.Successor(start, child))
	assert.ErrorIs(t, rules.Successor("*", child), chess.ErrNotSuccessor)
}

func TestStandard_ZeroCastling(t *testing.T) {
	var rules chess.Standard
	parent := "1. e4 e5 2. Nf3 Nc6 3. Bc4 Bc5"

	for _, child := range []string{
		parent + " 4. O-O",
		parent + " 4. 0-0",
		parent + " 4.0-0 *",
		parent + " 4. 0-0 1-0",
	} {
		assert.NoError(t, rules.Successor(parent, child), child)
		assert.Equal(t, 7, rules.Plies(child), child)
	}

	letters, err := rules.FEN(parent + " 4. O-O")
	require.NoError(t, err)
	digits, err := rules.FEN(parent + " 4. 0-0")
	require.NoError(t, err)
	assert.Equal(t, letters, digits)
}

func TestStandard_LongZeroCastling(t *testing.T) {
	var rules chess.Standard
	parent := "1. d4 d5 2. Nc3 Nc6 3. Bf4 Bf5 4. Qd2 Qd7"

	assert.NoError(t, rules.Successor(parent, parent+" 5. 0-0-0"))
	assert.NoError(t, rules.Successor(parent+" 5. 0-0-0", parent+" 5. 0-0-0 0-0-0"))
}

func TestStandard_SuccessorIgnoresVariations(t *testing.T) {
	var rules chess.Standard

	parent := "1. e4 e5 2. Nf3 (2. f4 exf4) 2... Nc6 {main line} *"
	child := "1. e4 e5 2. Nf3 Nc6 3. Bb5 *"
	assert.Equal(t, 4, rules.Plies(parent))
	assert.NoError(t, rules.Successor(parent, child))
}
