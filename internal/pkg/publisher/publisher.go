package publisher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var (
	errAlreadyRegistered = errors.New("publisher already registered")
	ErrNoPublishers      = errors.New("no publishers registered")
)

type publisher interface {
	Publish(ctx context.Context, n model.Notification) error
	RegisterDevice(device model.Device) error
}

// Publisher fans notifications out to every registered sink.
type Publisher struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	logger     *zap.Logger
}

func New() *Publisher {
	return &Publisher{
		publishers: make(map[string]publisher),
		logger:     zap.L(),
	}
}

func (p *Publisher) RegisterPublisher(name string, pub publisher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.publishers[name]; ok {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, name)
	}
	p.publishers[name] = pub
	return nil
}

func (p *Publisher) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.publishers))
}

// Send publishes n everywhere. A failing sink is logged and skipped; Send
// only fails when no sink accepted the notification.
func (p *Publisher) Send(ctx context.Context, n model.Notification) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.publishers) == 0 {
		return ErrNoPublishers
	}

	var errs []error
	delivered := 0
	for name, pub := range p.publishers {
		if err := pub.Publish(ctx, n); err != nil {
			p.logger.Error("failed to publish notification", zap.Error(err), zap.String("publisher", name), zap.Stringer("kind", n.Kind))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		delivered++
		p.logger.Debug("published notification", zap.String("publisher", name), zap.Stringer("kind", n.Kind))
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (p *Publisher) RegisterDevice(device model.Device) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, pub := range p.publishers {
		if err := pub.RegisterDevice(device); err != nil {
			p.logger.Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			continue
		}
		p.logger.Debug("registered device", zap.String("device", device.Key), zap.String("publisher", name))
	}
	return nil
}
