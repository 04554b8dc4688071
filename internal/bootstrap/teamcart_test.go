package bootstrap

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT:        config.JWTConfig{Secret: "jwt-secret", Issuer: "teamcart", ExpirationMinutes: 60},
		ShareToken: config.ShareTokenConfig{Secret: "share-secret", TTL: time.Hour},
		TeamCart: config.TeamCartConfig{
			AllocationStrategy: config.AllocationEqualBase,
			CommandMaxAttempts: 3,
			Currency:           "USD",
			MaxLifetime:        24 * time.Hour,
		},
		Projection: config.ProjectionConfig{ViewTTL: time.Hour},
	}
}

func testParams(t *testing.T) Params {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return Params{
		Config: testConfig(),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     db.FromGorm(dbtest.Open(t)),
		Redis:  redis.NewFromRaw(raw),
	}
}

func TestNewStackWiresTheCartCore(t *testing.T) {
	stack, err := NewStack(testParams(t))
	require.NoError(t, err)
	require.NotNil(t, stack.Service)
	require.NotNil(t, stack.Executor)
	require.NotNil(t, stack.Projector)
	require.Equal(t, config.AllocationEqualBase, stack.Strategy.Name())
	require.Equal(t, 24*time.Hour, stack.Executor.MaxLifetime())

	_, err = stack.Service.Dispatch(context.Background(), teamcart.CreateCart{
		RestaurantID: uuid.New(),
		HostUserID:   uuid.New(),
		HostName:     "Ana",
	})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestNewStackRejectsMissingDependencies(t *testing.T) {
	base := testParams(t)

	noDB := base
	noDB.DB = nil
	_, err := NewStack(noDB)
	require.ErrorContains(t, err, "database client is required")

	noRedis := base
	noRedis.Redis = nil
	_, err = NewStack(noRedis)
	require.ErrorContains(t, err, "redis client is required")

	badStrategy := base
	cfg := *base.Config
	cfg.TeamCart.AllocationStrategy = "round_robin"
	badStrategy.Config = &cfg
	_, err = NewStack(badStrategy)
	require.Error(t, err)

	noSecret := base
	cfg = *base.Config
	cfg.JWT.Secret = ""
	noSecret.Config = &cfg
	_, err = NewStack(noSecret)
	require.ErrorContains(t, err, "jwt secret is required")
}
