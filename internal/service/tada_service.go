package service

import "sync"

// TadaReplay pairs a locally recorded game with its id on the external
// replay archive. The upload itself happens out of process; we only
// announce completed pairs to clients.
type TadaReplay struct {
	TafGameID  int
	TadaGameID int
	MapName    string
}

// TadaService collects replay-upload announcements until the broadcaster
// drains them.
type TadaService struct {
	mu    sync.Mutex
	dirty []TadaReplay
}

func NewTadaService() *TadaService {
	return &TadaService{}
}

// MarkDirty queues a completed upload for broadcast.
func (s *TadaService) MarkDirty(r TadaReplay) {
	s.mu.Lock()
	s.dirty = append(s.dirty, r)
	s.mu.Unlock()
}

// DrainDirty returns and clears the pending announcements.
func (s *TadaService) DrainDirty() []TadaReplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	out := s.dirty
	s.dirty = nil
	return out
}
