package store

import (
	"encoding/json"
	"errors"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// gameContent is the JSON carried by game-kind events.
type gameContent struct {
	PGN *string `json:"pgn"`
}

// ContentPGN extracts the pgn field from event content.
func ContentPGN(content string) (string, bool) {
	var c gameContent
	if err := json.Unmarshal([]byte(content), &c); err != nil || c.PGN == nil {
		return "", false
	}
	return *c.PGN, true
}

// classifyStart projects a game start: game kind, a zero-ply pgn and no
// reply marker.
func (s *Store) classifyStart(ev codec.Event) (GameStart, bool) {
	if ev.Kind != s.gameKind {
		return GameStart{}, false
	}
	pgn, ok := ContentPGN(ev.Content)
	if !ok || s.rules.Plies(pgn) != 0 {
		return GameStart{}, false
	}
	if len(ev.Marked(codec.MarkerReply)) > 0 {
		return GameStart{}, false
	}

	var tags []string
	seen := make(map[string]bool)
	for _, ref := range ev.References() {
		if ref.Marker == codec.MarkerRoot || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		tags = append(tags, ref.ID)
	}
	return GameStart{Event: ev, EventTags: tags}, true
}

// classifyMove projects a move: game kind, a pgn, and exactly one root and
// one reply reference.
func (s *Store) classifyMove(ev codec.Event) (GameMove, bool) {
	if ev.Kind != s.gameKind {
		return GameMove{}, false
	}
	pgn, ok := ContentPGN(ev.Content)
	if !ok {
		return GameMove{}, false
	}
	roots, replies := ev.Marked(codec.MarkerRoot), ev.Marked(codec.MarkerReply)
	if len(roots) != 1 || len(replies) != 1 {
		return GameMove{}, false
	}

	p := GameMove{
		Event:       ev,
		GameID:      roots[0].ID,
		MoveCounter: s.rules.Plies(pgn),
	}
	if replies[0].ID != roots[0].ID {
		p.ParentMoveID = replies[0].ID
	}
	return p, true
}

// classifyChat projects a chat message that references a known game. The
// first such reference is the game; the second "e" reference, when it
// differs, is the previous message.
func (s *Store) classifyChat(ev codec.Event) (GameChat, bool, error) {
	if ev.Kind != s.chatKind {
		return GameChat{}, false, nil
	}
	refs := ev.References()

	gameID := ""
	for _, ref := range refs {
		_, err := s.backend.GetGameStart(ref.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return GameChat{}, false, err
		}
		gameID = ref.ID
		break
	}
	if gameID == "" {
		return GameChat{}, false, nil
	}

	p := GameChat{Event: ev, GameID: gameID}
	if len(refs) > 1 && refs[1].ID != gameID {
		p.PreviousChatID = refs[1].ID
	}
	return p, true, nil
}
