package engine

import (
	"context"
	"sync"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
)

type subKey struct {
	exchange string
	token    uint32
}

// subscriptions reference-counts tick subscriptions so an instrument shared
// by several trades stays subscribed until the last one leaves.
type subscriptions struct {
	gw   interfaces.Gateway
	mu   sync.Mutex
	refs map[subKey]int
}

func newSubscriptions(gw interfaces.Gateway) *subscriptions {
	return &subscriptions{gw: gw, refs: make(map[subKey]int)}
}

func (s *subscriptions) acquire(ctx context.Context, exchange string, token uint32) error {
	k := subKey{exchange, token}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs[k] == 0 {
		if err := s.gw.Subscribe(ctx, exchange, token); err != nil {
			return err
		}
		logger.Debug(ctx, "Subscribed instrument", "exchange", exchange, "token", token)
	}
	s.refs[k]++
	return nil
}

func (s *subscriptions) release(ctx context.Context, exchange string, token uint32) {
	k := subKey{exchange, token}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.refs[k]
	if n > 1 {
		s.refs[k] = n - 1
		return
	}
	delete(s.refs, k)
	if n == 0 {
		return
	}
	if err := s.gw.Unsubscribe(ctx, exchange, token); err != nil {
		logger.Warn(ctx, "Unsubscribe failed", "exchange", exchange, "token", token, "error", err)
		return
	}
	logger.Debug(ctx, "Unsubscribed instrument", "exchange", exchange, "token", token)
}

func (s *subscriptions) count(exchange string, token uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[subKey{exchange, token}]
}

// priceCache keeps the last traded price seen per instrument token.
type priceCache struct {
	mu     sync.RWMutex
	prices map[uint32]float64
}

func newPriceCache() *priceCache {
	return &priceCache{prices: make(map[uint32]float64)}
}

func (c *priceCache) set(token uint32, price float64) {
	c.mu.Lock()
	c.prices[token] = price
	c.mu.Unlock()
}

func (c *priceCache) get(token uint32) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[token]
	return p, ok
}
