package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type storedProposal struct {
	proposal  *models.TimetableProposal
	expiresAt time.Time
}

// proposalStore keeps proposals in process memory when Redis is disabled.
type proposalStore struct {
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]storedProposal
}

func newProposalStore() *proposalStore {
	return &proposalStore{
		now:   time.Now,
		items: make(map[string]storedProposal),
	}
}

func (s *proposalStore) Save(_ context.Context, proposal *models.TimetableProposal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ID] = storedProposal{proposal: proposal, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *proposalStore) Get(ctx context.Context, id string) (*models.TimetableProposal, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	if !s.now().Before(item.expiresAt) {
		_ = s.Delete(ctx, id)
		return nil, appErrors.ErrCacheMiss
	}
	return item.proposal, nil
}

func (s *proposalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}
