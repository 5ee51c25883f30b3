// Package scope resolves the transaction subset a case analysis runs over.
package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

const defaultTTL = 10 * time.Minute

// Service materializes case-scoped transaction sets. Filtered results are
// cached per case and filter hash so consecutive detector runs in the same
// analysis session reuse one SQL join.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a scoping service. ttl controls how long a materialized
// subset stays cached; zero selects the default.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Scoped returns the transactions of the case's members with the filter's
// predicates applied conjunctively. A nil filter means no restriction.
func (s *Service) Scoped(ctx context.Context, caseID int64, filter *domain.Filter) ([]*domain.Transaction, error) {
	if filter == nil {
		filter = &domain.Filter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	key := scopeKey(caseID, filter)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			var rows []*domain.Transaction
			if err := json.Unmarshal(data, &rows); err == nil {
				return rows, nil
			}
			// Corrupt entry, drop it and fall through to the database.
			_ = s.cache.Delete(ctx, key)
		}
	}

	rows, err := s.repo.CaseTransactions(ctx, caseID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scope case %d: %w", caseID, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(rows); err == nil {
			_ = s.cache.Set(ctx, key, data, s.ttl)
		}
	}

	return rows, nil
}

// Summary returns headline counts for a case: distinct clients, transaction
// count and total amount across all loads.
func (s *Service) Summary(ctx context.Context, caseID int64) (*domain.CaseSummary, error) {
	summary, err := s.repo.CaseSummary(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize case %d: %w", caseID, err)
	}
	return summary, nil
}

// Invalidate drops every cached subset for a case. Called when membership
// changes or new loads arrive.
func (s *Service) Invalidate(ctx context.Context, caseID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePrefix(ctx, fmt.Sprintf("scope:%d:", caseID))
}

func scopeKey(caseID int64, filter *domain.Filter) string {
	return fmt.Sprintf("scope:%d:%s", caseID, filter.Hash())
}
