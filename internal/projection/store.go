package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

// ErrMiss is returned when no view is cached for a cart.
var ErrMiss = errors.New("realtime view not cached")

// putScript overwrites the cached view unless a newer version is already
// stored, so a slow writer never replaces fresher state.
const putScript = `
local current = redis.call('GET', KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and type(decoded) == 'table' and decoded.version and tonumber(decoded.version) > tonumber(ARGV[1]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// ViewStore keeps one JSON document per cart in Redis.
type ViewStore struct {
	redis redis.ScriptStore
	ttl   time.Duration
}

func NewViewStore(store redis.ScriptStore, ttl time.Duration) (*ViewStore, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("view ttl must be positive")
	}
	return &ViewStore{redis: store, ttl: ttl}, nil
}

// Put stores view when it is at least as new as the cached copy. It reports
// whether the write happened.
func (s *ViewStore) Put(ctx context.Context, view *teamcart.CartView) (bool, error) {
	payload, err := json.Marshal(view)
	if err != nil {
		return false, fmt.Errorf("marshal view: %w", err)
	}
	res, err := s.redis.Eval(ctx, putScript, []string{s.redis.ViewKey(view.ID.String())},
		view.Version, string(payload), s.ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("store view: %w", err)
	}
	written, _ := res.(int64)
	return written == 1, nil
}

func (s *ViewStore) Get(ctx context.Context, cartID uuid.UUID) (*teamcart.CartView, error) {
	raw, err := s.redis.Get(ctx, s.redis.ViewKey(cartID.String()))
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get view: %w", err)
	}
	var view teamcart.CartView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return &view, nil
}

func (s *ViewStore) Delete(ctx context.Context, cartID uuid.UUID) error {
	return s.redis.Del(ctx, s.redis.ViewKey(cartID.String()))
}
