package service

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"partsledger/internal/apperr"
	"partsledger/internal/cache"
	"partsledger/internal/domain"
	"partsledger/internal/logging"
	"partsledger/internal/store"
	"partsledger/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	products cache.ProductCache
	locker   cache.Locker
	cacheTTL time.Duration
	logger   *zap.Logger
}

// New wires the use cases. productCache and locker may be nil, in which case
// reads always hit the repository and writers rely on the repository alone
// for serialisation.
func New(repo store.Repository, productCache cache.ProductCache, locker cache.Locker, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:     repo,
		products: productCache,
		locker:   locker,
		cacheTTL: cacheTTL,
		logger:   logging.OrNop(logger).Named("service"),
	}
}

// requireRole returns the calling actor when it holds one of roles. An empty
// roles list accepts any authenticated actor.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, apperr.New(apperr.KindForbidden, "%s role required", roles[0])
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	return requireRole(ctx, domain.RoleAdmin)
}

func requireStaff(ctx context.Context) (domain.Actor, error) {
	return requireRole(ctx, domain.RoleAdmin, domain.RoleStaff)
}

// withLock holds the distributed lock for key while fn runs.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// cacheProduct stores the product a write just committed. The cache keeps
// the highest version, so a reader racing the write cannot leave an older
// copy behind.
func (s *Service) cacheProduct(ctx context.Context, product *domain.Product) {
	if err := s.products.Set(ctx, product, s.cacheTTL); err != nil {
		s.logger.Warn("product cache refresh failed", zap.String("product_id", product.ID), zap.Error(err))
		s.invalidateProducts(ctx, product.ID)
	}
}

func (s *Service) invalidateProducts(ctx context.Context, ids ...string) {
	if err := s.products.Invalidate(ctx, ids...); err != nil {
		s.logger.Warn("product cache invalidate failed", zap.Strings("product_ids", ids), zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("aud"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, apperr.Field("to", "must be after from")
	}
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListAuditLogs(ctx, filter)
}

func clampLimit(limit int, fallback int, max int) int {
	if limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
