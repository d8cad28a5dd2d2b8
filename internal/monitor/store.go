package monitor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/momentum-mod/livestreams/internal/domain"
)

// Record pairs a live broadcast with the message announcing it.
type Record struct {
	BroadcastID string `json:"broadcast_id"`
	MessageID   string `json:"message_id"`
}

// Store is the in-memory announcement map. Only the Engine mutates it; reads
// are safe from any goroutine.
//
// A broadcast id maps to at most one message id and a message id is referenced
// by at most one broadcast.
type Store struct {
	mu        sync.RWMutex
	byStream  map[string]string
	byMessage map[string]string
}

func NewStore() *Store {
	return &Store{
		byStream:  map[string]string{},
		byMessage: map[string]string{},
	}
}

func (s *Store) Get(broadcastID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byStream[broadcastID]
	return id, ok
}

func (s *Store) Put(broadcastID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(broadcastID, messageID)
}

func (s *Store) put(broadcastID, messageID string) error {
	if cur, ok := s.byStream[broadcastID]; ok && cur != messageID {
		return fmt.Errorf("broadcast %s: %w", broadcastID, domain.ErrConflict)
	}
	if cur, ok := s.byMessage[messageID]; ok && cur != broadcastID {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrConflict)
	}

	s.byStream[broadcastID] = messageID
	s.byMessage[messageID] = broadcastID
	return nil
}

// Remove drops the record for broadcastID and returns the message it pointed at.
func (s *Store) Remove(broadcastID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byStream[broadcastID]
	if !ok {
		return "", false
	}
	delete(s.byStream, broadcastID)
	delete(s.byMessage, id)
	return id, true
}

// Replace swaps the whole store for the given broadcast -> message pairs.
func (s *Store) Replace(records map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevStream, prevMessage := s.byStream, s.byMessage
	s.byStream = make(map[string]string, len(records))
	s.byMessage = make(map[string]string, len(records))

	for bid, mid := range records {
		if err := s.put(bid, mid); err != nil {
			s.byStream, s.byMessage = prevStream, prevMessage
			return err
		}
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byStream)
}

// Records returns a copy of every record ordered by broadcast id.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.byStream))
	for bid, mid := range s.byStream {
		out = append(out, Record{BroadcastID: bid, MessageID: mid})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BroadcastID < out[j].BroadcastID
	})
	return out
}
