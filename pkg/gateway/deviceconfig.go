package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// elementJSON is one element definition inside a device's stored config.
type elementJSON struct {
	ID       string `json:"id"`
	Guide    string `json:"guide"`
	Encoding string `json:"encoding"`
	Length   int    `json:"length"`
	Decimals int    `json:"decimals"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name,omitempty"`
}

// funcJSON describes one function code a device speaks: its display name,
// direction and the element dictionaries for its body.
type funcJSON struct {
	Name             string        `json:"name,omitempty"`
	Direction        string        `json:"direction,omitempty"` // up / down
	Elements         []elementJSON `json:"elements,omitempty"`
	ResponseElements []elementJSON `json:"response_elements,omitempty"`
}

// deviceConfigJSON is the schema of store.Device.Config.
type deviceConfigJSON struct {
	Funcs map[string]funcJSON `json:"funcs"`
}

// ParseDeviceConfig turns a stored device row into the decoding
// configuration consumed by the parser. An empty Config column yields a
// config that decodes no elements but still stamps report times.
func ParseDeviceConfig(dev *store.Device) (*sl651.DeviceConfig, error) {
	cfg := &sl651.DeviceConfig{
		DeviceID:         dev.ID,
		Timezone:         dev.Timezone,
		Elements:         map[string][]sl651.ElementDef{},
		ResponseElements: map[string][]sl651.ElementDef{},
		FuncNames:        map[string]string{},
		FuncDirections:   map[string]string{},
	}
	if strings.TrimSpace(dev.Config) == "" {
		return cfg, nil
	}

	var raw deviceConfigJSON
	if err := json.Unmarshal([]byte(dev.Config), &raw); err != nil {
		return nil, fmt.Errorf("device %s: invalid config: %w", dev.ID, err)
	}

	for funcCode, fn := range raw.Funcs {
		funcCode = strings.ToUpper(funcCode)
		if fn.Name != "" {
			cfg.FuncNames[funcCode] = fn.Name
		}
		if fn.Direction != "" {
			cfg.FuncDirections[funcCode] = fn.Direction
		}
		if defs := convertElements(fn.Elements); defs != nil {
			cfg.Elements[funcCode] = defs
		}
		if defs := convertElements(fn.ResponseElements); defs != nil {
			cfg.ResponseElements[funcCode] = defs
		}
	}
	return cfg, nil
}

func convertElements(raw []elementJSON) []sl651.ElementDef {
	if len(raw) == 0 {
		return nil
	}
	defs := make([]sl651.ElementDef, 0, len(raw))
	for _, el := range raw {
		defs = append(defs, sl651.ElementDef{
			ID:       el.ID,
			GuideHex: strings.ToUpper(el.Guide),
			Encoding: sl651.Encoding(el.Encoding),
			Length:   el.Length,
			Decimals: el.Decimals,
			Unit:     el.Unit,
			Name:     el.Name,
		})
	}
	return defs
}

// configCache memoizes parsed device configurations per (link, remote
// code). Invalidation is per link: a device update may change the code
// itself, so the stale key cannot be named precisely.
type configCache struct {
	mu      sync.RWMutex
	entries map[string]*sl651.DeviceConfig
}

func newConfigCache() *configCache {
	return &configCache{entries: map[string]*sl651.DeviceConfig{}}
}

func cacheKey(linkID, code string) string {
	return linkID + "\x00" + code
}

func (c *configCache) get(linkID, code string) (*sl651.DeviceConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[cacheKey(linkID, code)]
	return cfg, ok
}

func (c *configCache) put(linkID, code string, cfg *sl651.DeviceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(linkID, code)] = cfg
}

// invalidateLink drops every cached config for a link.
func (c *configCache) invalidateLink(linkID string) {
	prefix := linkID + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *configCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
