package service

import "errors"

var (
	// ErrServiceNotReady rejects input while a service is not accepting.
	ErrServiceNotReady = errors.New("service not ready")

	// ErrGameRating marks a game the rating pipeline cannot rate. The
	// queue advances and no database state is mutated.
	ErrGameRating = errors.New("game cannot be rated")
)
