package kite

import (
	"strings"
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// instrumentMapper maps trading symbols to instrument tokens for one exchange.
// It is loaded lazily from the instrument dump and kept for the process lifetime.
type instrumentMapper struct {
	mu            sync.RWMutex
	symbolToToken map[string]int
	loaded        bool
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{symbolToToken: make(map[string]int)}
}

func (im *instrumentMapper) load(instruments kiteconnect.Instruments) {
	im.mu.Lock()
	defer im.mu.Unlock()

	for _, inst := range instruments {
		im.symbolToToken[strings.ToUpper(inst.Tradingsymbol)] = inst.InstrumentToken
	}
	im.loaded = true
}

func (im *instrumentMapper) isLoaded() bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.loaded
}

func (im *instrumentMapper) getToken(symbol string) (int, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, ok := im.symbolToToken[strings.ToUpper(symbol)]
	return token, ok
}
