package infra

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DecisionCache memoiza decisões string -> bool (ex.: "este User-Agent é
// isento?"). É só uma otimização: perder entradas nunca muda o resultado.
type DecisionCache struct {
	lru *expirable.LRU[string, bool]
}

const (
	DefaultDecisionCacheSize = 1024
	DefaultDecisionCacheTTL  = 30 * time.Minute
)

func NewDecisionCache(size int, ttl time.Duration) *DecisionCache {
	if size <= 0 {
		size = DefaultDecisionCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDecisionCacheTTL
	}
	return &DecisionCache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}
}

// Lookup retorna a decisão memoizada para input ou calcula com compute e guarda.
// Goroutines concorrentes podem calcular a mesma chave; a última escrita vence.
func (c *DecisionCache) Lookup(input string, compute func(string) bool) bool {
	if v, ok := c.lru.Get(input); ok {
		return v
	}
	v := compute(input)
	c.lru.Add(input, v)
	return v
}

func (c *DecisionCache) Len() int { return c.lru.Len() }

func (c *DecisionCache) Purge() { c.lru.Purge() }
