//go:build integration

package certificate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"sealedrecord/internal/certificate"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/platform/redis"
	"sealedrecord/pkg/testutil/containers"
)

type RenderCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *certificate.RenderCache
}

func TestRenderCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RenderCacheSuite))
}

func (s *RenderCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = certificate.NewRenderCache(&redis.Client{Client: s.redis.Client})
}

func (s *RenderCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RenderCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	hash := digest.String("snapshot")

	_, hit := s.cache.Get(ctx, hash)
	s.False(hit)

	s.cache.Set(ctx, hash, "CERTIFICATE OF COMPLETION\n...")
	rendered, hit := s.cache.Get(ctx, hash)
	s.True(hit)
	s.Equal("CERTIFICATE OF COMPLETION\n...", rendered)

	// Different hash, different entry.
	_, hit = s.cache.Get(ctx, digest.String("other snapshot"))
	s.False(hit)
}

func (s *RenderCacheSuite) TestEntriesCarryTTL() {
	ctx := context.Background()
	hash := digest.String("snapshot")
	s.cache.Set(ctx, hash, "artifact")

	ttl, err := s.redis.Client.TTL(ctx, "certificate:render:"+hash).Result()
	s.Require().NoError(err)
	s.Greater(ttl.Hours(), 23.0)
}
