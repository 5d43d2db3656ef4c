package services

import "context"

// SongApproved is published after the approval of an original song with a known creator
// has been committed.
type SongApproved struct {
	SongID    uint
	CreatorID uint
}

// SongApprovedHandler reacts to SongApproved. Errors are logged by the publisher and never
// reach the moderator.
type SongApprovedHandler interface {
	HandleSongApproved(ctx context.Context, ev SongApproved) error
}

// SongApprovedFunc adapts a function to SongApprovedHandler.
type SongApprovedFunc func(ctx context.Context, ev SongApproved) error

func (f SongApprovedFunc) HandleSongApproved(ctx context.Context, ev SongApproved) error {
	return f(ctx, ev)
}
