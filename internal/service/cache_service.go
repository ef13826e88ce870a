package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

const (
	candidatesKeyPrefix = "scheduler:candidates:"
	// candidatesPattern matches every cached candidate listing.
	candidatesPattern = candidatesKeyPrefix + "*"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService keeps the candidate listings that every committed scheduling write
// invalidates. A nil service, or one without a repository, always misses.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs the cache facade. ttl bounds every listing.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// CandidatesKey identifies a listing by its normalized query: the target date,
// the shift filter and the excluded number.
func CandidatesKey(date *time.Time, shift *models.Shift, exclude *int64) string {
	datePart, shiftPart, excludePart := "all", "all", "0"
	if date != nil {
		datePart = date.Format(models.DateLayout)
	}
	if shift != nil {
		shiftPart = string(*shift)
	}
	if exclude != nil {
		excludePart = strconv.FormatInt(*exclude, 10)
	}
	return fmt.Sprintf("%s%s:%s:%s", candidatesKeyPrefix, datePart, shiftPart, excludePart)
}

// Candidates returns the cached listing under key. A miss is not an error.
func (s *CacheService) Candidates(ctx context.Context, key string) ([]dto.UngroupedCandidate, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	var cached []dto.UngroupedCandidate
	started := time.Now()
	err := s.repo.Get(ctx, key, &cached)
	s.observeLookup(err == nil, time.Since(started))
	switch {
	case err == nil:
		return cached, true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// StoreCandidates caches a listing for the configured TTL.
func (s *CacheService) StoreCandidates(ctx context.Context, key string, candidates []dto.UngroupedCandidate) error {
	if !s.Enabled() {
		return nil
	}
	started := time.Now()
	err := s.repo.Set(ctx, key, candidates, s.ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(started))
	}
	return err
}

// InvalidateCandidates drops every cached listing.
func (s *CacheService) InvalidateCandidates(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.DeleteByPattern(ctx, candidatesPattern)
}

func (s *CacheService) observeLookup(hit bool, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, duration)
	}
}
