package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

const defaultProposalKeyPrefix = "timetable:proposal:"

// ProposalCacheRepository keeps generated proposals in Redis so every API instance can save them.
type ProposalCacheRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewProposalCacheRepository constructs a proposal cache. An empty prefix uses the default namespace.
func NewProposalCacheRepository(client *redis.Client, prefix string, logger *zap.Logger) *ProposalCacheRepository {
	if prefix == "" {
		prefix = defaultProposalKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProposalCacheRepository{client: client, prefix: prefix, logger: logger}
}

func (r *ProposalCacheRepository) key(id string) string {
	return r.prefix + id
}

// Get loads a proposal. Missing or expired keys return appErrors.ErrCacheMiss.
func (r *ProposalCacheRepository) Get(ctx context.Context, id string) (*models.TimetableProposal, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get proposal %s: %w", id, err)
	}

	var proposal models.TimetableProposal
	if err := json.Unmarshal(raw, &proposal); err != nil {
		r.logger.Warn("dropping undecodable proposal", zap.String("proposal_id", id), zap.Error(err))
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, appErrors.ErrCacheMiss
	}
	return &proposal, nil
}

// Save stores the proposal until ttl elapses.
func (r *ProposalCacheRepository) Save(ctx context.Context, proposal *models.TimetableProposal, ttl time.Duration) error {
	if r.client == nil || proposal == nil {
		return nil
	}

	payload, err := json.Marshal(proposal)
	if err != nil {
		return fmt.Errorf("marshal proposal %s: %w", proposal.ID, err)
	}
	if err := r.client.Set(ctx, r.key(proposal.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set proposal %s: %w", proposal.ID, err)
	}
	return nil
}

// Delete drops a proposal, typically after it has been saved as a timetable.
func (r *ProposalCacheRepository) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete proposal %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *ProposalCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
