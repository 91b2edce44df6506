package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// ProposalBackend abstracts persistence for generated proposals.
type ProposalBackend interface {
	Get(ctx context.Context, id string) (*models.TimetableProposal, error)
	Save(ctx context.Context, proposal *models.TimetableProposal, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// CacheService fronts the proposal backend with metrics and logging.
type CacheService struct {
	backend    ProposalBackend
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewCacheService constructs a cache service. A nil backend keeps proposals in memory.
func NewCacheService(backend ProposalBackend, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger) *CacheService {
	if backend == nil {
		backend = newProposalStore()
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{backend: backend, metrics: metrics, defaultTTL: defaultTTL, logger: logger}
}

// TTL returns the lifetime applied when callers pass none.
func (s *CacheService) TTL() time.Duration {
	return s.defaultTTL
}

// Get loads a proposal. A missing or expired proposal yields ErrCacheMiss.
func (s *CacheService) Get(ctx context.Context, id string) (*models.TimetableProposal, error) {
	start := time.Now()
	proposal, err := s.backend.Get(ctx, id)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) || appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.ErrCacheMiss
		}
		s.logger.Warn("proposal cache get failed", zap.String("proposal_id", id), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return proposal, nil
}

// Save stores the proposal.
func (s *CacheService) Save(ctx context.Context, proposal *models.TimetableProposal, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.backend.Save(ctx, proposal, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("proposal cache set failed", zap.String("proposal_id", proposal.ID), zap.Error(err))
	}
	return err
}

// Delete drops a proposal once it has been saved.
func (s *CacheService) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		s.logger.Warn("proposal cache delete failed", zap.String("proposal_id", id), zap.Error(err))
		return err
	}
	return nil
}
