package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jafarshop/checkoutapi/internal/pricing"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

// SettingsSource fetches live tax and shipping settings
type SettingsSource interface {
	GetTaxSettings(ctx context.Context) (pricing.TaxSettings, error)
	GetShippingSettings(ctx context.Context) (pricing.ShippingSettings, error)
}

const (
	DefaultSettingsTTL     = 5 * time.Minute
	DefaultSettingsTimeout = 3 * time.Second
)

type cachedSettings[T any] struct {
	value     T
	fetchedAt time.Time
	ok        bool
}

// SettingsProvider caches tax and shipping settings per instance.
// Concurrent misses for the same kind share one fetch. On failure it
// serves the last known good value, then defaults.
type SettingsProvider struct {
	source  SettingsSource
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	tax      cachedSettings[pricing.TaxSettings]
	shipping cachedSettings[pricing.ShippingSettings]
}

// NewSettingsProvider creates a new settings provider
func NewSettingsProvider(source SettingsSource, ttl, timeout time.Duration, logger *zap.Logger) *SettingsProvider {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if timeout <= 0 {
		timeout = DefaultSettingsTimeout
	}
	return &SettingsProvider{
		source:  source,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// TaxSettings never fails; see SettingsProvider
func (p *SettingsProvider) TaxSettings(ctx context.Context) pricing.TaxSettings {
	p.mu.RLock()
	cached := p.tax
	p.mu.RUnlock()
	if cached.ok && p.now().Sub(cached.fetchedAt) < p.ttl {
		return cached.value
	}

	v, err, _ := p.group.Do("tax", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		tax, err := p.source.GetTaxSettings(fetchCtx)
		if err == nil {
			_, err = tax.RateFraction()
		}
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.tax = cachedSettings[pricing.TaxSettings]{value: tax, fetchedAt: p.now(), ok: true}
		p.mu.Unlock()
		return tax, nil
	})
	if err == nil {
		return v.(pricing.TaxSettings)
	}

	p.logFetchFailure("tax", err, cached.ok)
	if cached.ok {
		return cached.value
	}
	return pricing.DefaultTaxSettings()
}

// ShippingSettings never fails; see SettingsProvider
func (p *SettingsProvider) ShippingSettings(ctx context.Context) pricing.ShippingSettings {
	p.mu.RLock()
	cached := p.shipping
	p.mu.RUnlock()
	if cached.ok && p.now().Sub(cached.fetchedAt) < p.ttl {
		return cached.value
	}

	v, err, _ := p.group.Do("shipping", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		shipping, err := p.source.GetShippingSettings(fetchCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.shipping = cachedSettings[pricing.ShippingSettings]{value: shipping, fetchedAt: p.now(), ok: true}
		p.mu.Unlock()
		return shipping, nil
	})
	if err == nil {
		return v.(pricing.ShippingSettings)
	}

	p.logFetchFailure("shipping", err, cached.ok)
	if cached.ok {
		return cached.value
	}
	return pricing.DefaultShippingSettings()
}

// Invalidate drops both cached entries
func (p *SettingsProvider) Invalidate() {
	p.mu.Lock()
	p.tax = cachedSettings[pricing.TaxSettings]{}
	p.shipping = cachedSettings[pricing.ShippingSettings]{}
	p.mu.Unlock()
}

func (p *SettingsProvider) logFetchFailure(kind string, err error, haveLastGood bool) {
	fallback := "defaults"
	if haveLastGood {
		fallback = "last_known_good"
	}
	p.logger.Warn("Failed to fetch settings",
		zap.String("kind", string(apperrors.KindSettingsFetchFailed)),
		zap.String("settings", kind),
		zap.String("fallback", fallback),
		zap.Error(err),
	)
}
