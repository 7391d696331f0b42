package selector

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// Strategy labels accepted in configuration.
const (
	StrategyHighestPriority = "highest_priority"
	StrategyLoadBalancing   = "load_balancing"
)

// Strategy picks one provider from a candidate list. Candidates are already
// filtered to usable providers and ordered by ascending priority.
type Strategy interface {
	Name() string
	Choose(candidates []domain.ProviderRecord) (*domain.ProviderRecord, error)
}

// Registry maps configuration labels to strategy implementations. Labels are
// resolved once at startup so a typo in configuration fails the boot instead
// of the first send.
type Registry map[string]Strategy

func NewRegistry(intn func(n int) int) Registry {
	if intn == nil {
		var mu sync.Mutex
		rng := rand.New(rand.NewSource(rand.Int63()))
		intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return rng.Intn(n)
		}
	}

	return Registry{
		StrategyHighestPriority: highestPriorityStrategy{},
		StrategyLoadBalancing:   loadBalancingStrategy{intn: intn},
	}
}

func (r Registry) Get(label string) (Strategy, error) {
	strategy, ok := r[label]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider strategy %q", domain.ErrValidation, label)
	}
	return strategy, nil
}

type highestPriorityStrategy struct{}

func (highestPriorityStrategy) Name() string { return StrategyHighestPriority }

func (highestPriorityStrategy) Choose(candidates []domain.ProviderRecord) (*domain.ProviderRecord, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrNoUsableProvider
	}
	return &candidates[0], nil
}

type loadBalancingStrategy struct {
	intn func(n int) int
}

func (loadBalancingStrategy) Name() string { return StrategyLoadBalancing }

// Choose draws one provider with probability proportional to its weight.
// A single draw per call keeps the traffic split accurate without any
// shared counter between instances.
func (s loadBalancingStrategy) Choose(candidates []domain.ProviderRecord) (*domain.ProviderRecord, error) {
	total := 0
	for i := range candidates {
		if candidates[i].Weight > 0 {
			total += candidates[i].Weight
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no provider with positive weight", domain.ErrNoUsableProvider)
	}

	draw := s.intn(total)
	for i := range candidates {
		if candidates[i].Weight <= 0 {
			continue
		}
		draw -= candidates[i].Weight
		if draw < 0 {
			return &candidates[i], nil
		}
	}

	return &candidates[len(candidates)-1], nil
}
