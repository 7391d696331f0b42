package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

// Selector assigns a sending provider to a notification. Template and service
// pins bypass the configured strategy; everything else goes through the
// per-type strategy resolved at construction time.
type Selector struct {
	providers  repository.ProviderRepository
	strategies map[domain.NotificationType]Strategy
	logger     *zap.Logger
}

func NewSelector(
	providers repository.ProviderRepository,
	registry Registry,
	labels map[domain.NotificationType]string,
	logger *zap.Logger,
) (*Selector, error) {
	if providers == nil {
		return nil, errors.New("provider repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	strategies := make(map[domain.NotificationType]Strategy, len(labels))
	for t, label := range labels {
		strategy, err := registry.Get(label)
		if err != nil {
			return nil, fmt.Errorf("strategy for %s: %w", t, err)
		}
		strategies[t] = strategy
	}

	return &Selector{
		providers:  providers,
		strategies: strategies,
		logger:     logger,
	}, nil
}

// GetProvider resolves the provider for one notification. templateProviderID
// wins over serviceProviderID; a pin bypasses the strategy entirely, so a
// missing or unusable pinned provider is an error rather than a fallback.
func (s *Selector) GetProvider(
	ctx context.Context,
	t domain.NotificationType,
	international bool,
	templateProviderID *string,
	serviceProviderID *string,
) (*domain.ProviderRecord, error) {
	for _, pin := range []*string{templateProviderID, serviceProviderID} {
		if pin == nil || *pin == "" {
			continue
		}
		return s.resolvePin(ctx, *pin, t, international)
	}

	strategy, ok := s.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy configured for %s", domain.ErrNoUsableProvider, t)
	}

	candidates, err := s.providers.ListActive(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	usable := candidates[:0]
	for i := range candidates {
		if candidates[i].Usable(t, international) {
			usable = append(usable, candidates[i])
		}
	}
	if len(usable) == 0 {
		return nil, domain.ErrNoUsableProvider
	}

	provider, err := strategy.Choose(usable)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Selector) resolvePin(
	ctx context.Context,
	id string,
	t domain.NotificationType,
	international bool,
) (*domain.ProviderRecord, error) {
	provider, err := s.providers.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("pinned provider not found",
			zap.String("provider_id", id))
		return nil, fmt.Errorf("%w: pinned provider %s not found", domain.ErrNoUsableProvider, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned provider: %w", err)
	}

	if !provider.Usable(t, international) {
		s.logger.Warn("pinned provider unusable",
			zap.String("provider_id", id),
			zap.String("notification_type", string(t)),
			zap.Bool("international", international))
		return nil, fmt.Errorf("%w: pinned provider %s cannot serve %s", domain.ErrNoUsableProvider, id, t)
	}

	return provider, nil
}
