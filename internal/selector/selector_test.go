package selector

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

type fakeProviderRepo struct {
	byID   map[string]*domain.ProviderRecord
	active []domain.ProviderRecord
}

func (f *fakeProviderRepo) GetByID(_ context.Context, id string) (*domain.ProviderRecord, error) {
	provider, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return provider, nil
}

func (f *fakeProviderRepo) ListActive(_ context.Context, t domain.NotificationType) ([]domain.ProviderRecord, error) {
	out := make([]domain.ProviderRecord, 0, len(f.active))
	for _, p := range f.active {
		if p.Type == t && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestSelector(t *testing.T, repo *fakeProviderRepo, label string) *Selector {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	sel, err := NewSelector(repo, NewRegistry(rng.Intn), map[domain.NotificationType]string{
		domain.TypeSMS:   label,
		domain.TypeEmail: label,
	}, nil)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	return sel
}

func TestNewSelectorRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	_, err := NewSelector(&fakeProviderRepo{}, NewRegistry(nil), map[domain.NotificationType]string{
		domain.TypeSMS: "round_robin",
	}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewSelector() error = %v, want ErrValidation", err)
	}
}

func TestHighestPriorityPicksLowestPriorityActive(t *testing.T) {
	t.Parallel()

	repo := &fakeProviderRepo{
		active: []domain.ProviderRecord{
			{ID: "p1", Type: domain.TypeSMS, Priority: 1, Active: true},
			{ID: "p2", Type: domain.TypeSMS, Priority: 2, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyHighestPriority)

	for i := 0; i < 10; i++ {
		provider, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, nil, nil)
		if err != nil {
			t.Fatalf("GetProvider() error = %v", err)
		}
		if provider.ID != "p1" {
			t.Fatalf("GetProvider() = %s, want p1", provider.ID)
		}
	}
}

func TestGetProviderNoCandidates(t *testing.T) {
	t.Parallel()

	sel := newTestSelector(t, &fakeProviderRepo{}, StrategyHighestPriority)

	_, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, nil, nil)
	if !errors.Is(err, domain.ErrNoUsableProvider) {
		t.Fatalf("GetProvider() error = %v, want ErrNoUsableProvider", err)
	}
}

func TestGetProviderInternationalFilter(t *testing.T) {
	t.Parallel()

	repo := &fakeProviderRepo{
		active: []domain.ProviderRecord{
			{ID: "domestic", Type: domain.TypeSMS, Priority: 1, Active: true},
			{ID: "global", Type: domain.TypeSMS, Priority: 2, Active: true, SupportsInternational: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyHighestPriority)

	provider, err := sel.GetProvider(context.Background(), domain.TypeSMS, true, nil, nil)
	if err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}
	if provider.ID != "global" {
		t.Fatalf("GetProvider() = %s, want global", provider.ID)
	}
}

func TestLoadBalancingDistribution(t *testing.T) {
	t.Parallel()

	repo := &fakeProviderRepo{
		active: []domain.ProviderRecord{
			{ID: "a", Type: domain.TypeSMS, Priority: 1, Weight: 10, Active: true},
			{ID: "b", Type: domain.TypeSMS, Priority: 1, Weight: 90, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyLoadBalancing)

	const draws = 5000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		provider, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, nil, nil)
		if err != nil {
			t.Fatalf("GetProvider() error = %v", err)
		}
		counts[provider.ID]++
	}

	if counts["a"]+counts["b"] != draws {
		t.Fatalf("draw counts = %v, want them to sum to %d", counts, draws)
	}
	// Expectation for "a" is 500; allow a wide band so the seeded
	// sequence never flakes.
	if counts["a"] < 350 || counts["a"] > 650 {
		t.Fatalf("provider a drawn %d times, want roughly 500 of %d", counts["a"], draws)
	}
}

func TestLoadBalancingRequiresPositiveWeight(t *testing.T) {
	t.Parallel()

	repo := &fakeProviderRepo{
		active: []domain.ProviderRecord{
			{ID: "a", Type: domain.TypeSMS, Priority: 1, Weight: 0, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyLoadBalancing)

	_, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, nil, nil)
	if !errors.Is(err, domain.ErrNoUsableProvider) {
		t.Fatalf("GetProvider() error = %v, want ErrNoUsableProvider", err)
	}
}

func TestGetProviderTemplatePinWins(t *testing.T) {
	t.Parallel()

	pinned := &domain.ProviderRecord{ID: "pinned", Type: domain.TypeSMS, Priority: 9, Active: true}
	repo := &fakeProviderRepo{
		byID: map[string]*domain.ProviderRecord{"pinned": pinned},
		active: []domain.ProviderRecord{
			{ID: "p1", Type: domain.TypeSMS, Priority: 1, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyHighestPriority)

	pin := "pinned"
	provider, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, &pin, nil)
	if err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}
	if provider.ID != "pinned" {
		t.Fatalf("GetProvider() = %s, want pinned", provider.ID)
	}
}

func TestGetProviderUnusablePinIsRejected(t *testing.T) {
	t.Parallel()

	inactive := &domain.ProviderRecord{ID: "pinned", Type: domain.TypeSMS, Priority: 9, Active: false}
	repo := &fakeProviderRepo{
		byID: map[string]*domain.ProviderRecord{"pinned": inactive},
		active: []domain.ProviderRecord{
			{ID: "p1", Type: domain.TypeSMS, Priority: 1, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyHighestPriority)

	pin := "pinned"
	_, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, &pin, nil)
	if !errors.Is(err, domain.ErrNoUsableProvider) {
		t.Fatalf("GetProvider() error = %v, want ErrNoUsableProvider", err)
	}
}

func TestGetProviderMissingPinIsRejected(t *testing.T) {
	t.Parallel()

	repo := &fakeProviderRepo{
		active: []domain.ProviderRecord{
			{ID: "p1", Type: domain.TypeSMS, Priority: 1, Active: true},
		},
	}
	sel := newTestSelector(t, repo, StrategyHighestPriority)

	pin := "ghost"
	_, err := sel.GetProvider(context.Background(), domain.TypeSMS, false, nil, &pin)
	if !errors.Is(err, domain.ErrNoUsableProvider) {
		t.Fatalf("GetProvider() error = %v, want ErrNoUsableProvider", err)
	}
}
