package zerodha

import (
	"sort"
	"strings"
	"sync"

	"order-executor/internal/types"
)

const maxSearchResults = 20

// instrumentMapper manages bidirectional mapping between symbols and tokens
type instrumentMapper struct {
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
	mu            sync.RWMutex
}

// newInstrumentMapper creates a new instrument mapper
func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		symbolToToken: make(map[string]uint32),
		tokenToSymbol: make(map[uint32]string),
	}
}

// addMapping adds a symbol-token mapping
func (im *instrumentMapper) addMapping(symbol string, token uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.symbolToToken[symbol] = token
	im.tokenToSymbol[token] = symbol
}

// getToken retrieves the token for a symbol
func (im *instrumentMapper) getToken(symbol string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.symbolToToken[symbol]
	return token, exists
}

// getSymbol retrieves the symbol for a token
func (im *instrumentMapper) getSymbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.tokenToSymbol[token]
}

// matchInstruments ranks exact symbol matches first, then symbol prefixes,
// then any symbol or name containing the query.
func matchInstruments(list []types.Instrument, query string, limit int) []types.Instrument {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	type scored struct {
		inst types.Instrument
		rank int
	}
	var hits []scored
	for _, in := range list {
		sym := strings.ToUpper(in.Symbol)
		switch {
		case sym == q:
			hits = append(hits, scored{in, 0})
		case strings.HasPrefix(sym, q):
			hits = append(hits, scored{in, 1})
		case strings.Contains(sym, q) || strings.Contains(strings.ToUpper(in.Name), q):
			hits = append(hits, scored{in, 2})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].inst.Symbol < hits[j].inst.Symbol
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]types.Instrument, len(hits))
	for i, h := range hits {
		out[i] = h.inst
	}
	return out
}
