package game

import "errors"

var (
	// ErrGameFull rejects a join once max_players is reached. Its text is
	// shown to the joining player verbatim.
	ErrGameFull = errors.New("Game is full")

	// ErrHostNotConnected rejects a join before the host finished hosting.
	ErrHostNotConnected = errors.New("The host has left the game")

	// ErrGameEnded rejects any mutation of a finished game.
	ErrGameEnded = errors.New("game has ended")

	// ErrStateNotDirty short-circuits dirty marking when a reported state
	// carries no observable change.
	ErrStateNotDirty = errors.New("game state not dirty")

	// ErrUnknownArmy drops a result report for an army nobody is seated in.
	ErrUnknownArmy = errors.New("unknown army")

	// ErrMalformedResult drops a result report whose text cannot be parsed.
	ErrMalformedResult = errors.New("malformed game result")
)
