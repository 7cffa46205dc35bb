package progress

import (
	"context"

	"github.com/rahul/contentpilot/internal/cache"
)

// CachedService serves GetInit from a short-lived cache so that remounting
// the wizard does not refetch the bootstrap snapshot. Completing a step drops
// the cached snapshot.
type CachedService struct {
	Service
	snapshots *cache.Cache[InitResponse]
	lookup    cache.Lookup
}

// NewCachedService wraps svc. userKey scopes the cached snapshot, typically
// the backend URL plus the user the token belongs to.
func NewCachedService(svc Service, snapshots *cache.Cache[InitResponse], userKey string) *CachedService {
	return &CachedService{
		Service:   svc,
		snapshots: snapshots,
		lookup:    cache.Lookup{"endpoint": "onboarding/init", "user": userKey},
	}
}

func (s *CachedService) GetInit(ctx context.Context) (InitResponse, error) {
	return s.snapshots.GetOrLoad(ctx, s.lookup, s.Service.GetInit)
}

func (s *CachedService) SetCurrentStep(ctx context.Context, step int, payload map[string]any) error {
	err := s.Service.SetCurrentStep(ctx, step, payload)
	// Even a failed call may have reached the backend.
	s.snapshots.Delete(s.lookup)
	return err
}
