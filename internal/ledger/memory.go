package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/points-exchange/internal/model"
)

// Memory is an in-process Ledger. Its mutex plays the role of the row lock.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]model.Product
	now func() time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]model.Product), now: time.Now}
}

func (s *Memory) Dispense(ctx context.Context, productID string) (model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[productID]
	if !ok {
		return model.Unavailable(model.ReasonNotFound), nil
	}
	if reason, ok := check(p); !ok {
		return model.Unavailable(reason), nil
	}
	key := p.CardKeys[0]
	rest := make(model.CardKeys, len(p.CardKeys)-1)
	copy(rest, p.CardKeys[1:])
	p.CardKeys = rest
	p.Stock--
	p.UpdatedAt = s.now()
	s.m[productID] = p
	return model.Dispensed(key, p.Name, p.Stock), nil
}

func (s *Memory) Product(_ context.Context, id string) (model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.CardKeys = append(model.CardKeys(nil), p.CardKeys...)
	return p, nil
}

func (s *Memory) Put(_ context.Context, p model.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.CardKeys = append(model.CardKeys{}, p.CardKeys...)
	p.UpdatedAt = s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.ID] = p
	return nil
}

func (s *Memory) Ping(context.Context) error { return nil }
