package gateway

import (
	"testing"

	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

func TestParseDeviceConfig(t *testing.T) {
	dev := &store.Device{
		ID:       "dev-1",
		Timezone: "+08:00",
		Config: `{"funcs":{
			"32":{"name":"hourly report","direction":"up","elements":[
				{"id":"water_level","guide":"39","encoding":"BCD","length":3,"decimals":2,"unit":"m"},
				{"id":"rainfall","guide":"26","encoding":"BCD","length":2,"decimals":1}
			]},
			"40":{"direction":"down","response_elements":[
				{"id":"status","guide":"f1","encoding":"DICT","length":1}
			]}
		}}`,
	}

	cfg, err := ParseDeviceConfig(dev)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "dev-1" || cfg.Timezone != "+08:00" {
		t.Errorf("identity fields: %+v", cfg)
	}

	defs := cfg.ElementsFor("32")
	if len(defs) != 2 {
		t.Fatalf("uplink elements = %d", len(defs))
	}
	if defs[0].ID != "water_level" || defs[0].Encoding != sl651.EncodingBCD || defs[0].Decimals != 2 {
		t.Errorf("first element = %+v", defs[0])
	}
	if cfg.FuncName("32") != "hourly report" {
		t.Errorf("func name = %q", cfg.FuncName("32"))
	}

	// A down funcCode resolves through the response dictionary, with the
	// guide normalized to uppercase hex.
	resp := cfg.ElementsFor("40")
	if len(resp) != 1 || resp[0].GuideHex != "F1" {
		t.Errorf("response elements = %+v", resp)
	}
}

func TestParseDeviceConfigEmpty(t *testing.T) {
	cfg, err := ParseDeviceConfig(&store.Device{ID: "dev-2", Timezone: "+00:00"})
	if err != nil {
		t.Fatal(err)
	}
	if defs := cfg.ElementsFor("32"); defs != nil {
		t.Errorf("empty config produced elements: %+v", defs)
	}
}

func TestParseDeviceConfigInvalid(t *testing.T) {
	if _, err := ParseDeviceConfig(&store.Device{ID: "dev-3", Config: "{broken"}); err == nil {
		t.Fatal("invalid JSON accepted")
	}
}

func TestConfigCacheInvalidation(t *testing.T) {
	cache := newConfigCache()
	cfg := &sl651.DeviceConfig{DeviceID: "dev-1"}

	cache.put("link-1", "1234567890", cfg)
	cache.put("link-1", "0987654321", cfg)
	cache.put("link-2", "1234567890", cfg)

	if got, ok := cache.get("link-1", "1234567890"); !ok || got != cfg {
		t.Fatal("cached entry not returned")
	}

	cache.invalidateLink("link-1")
	if _, ok := cache.get("link-1", "1234567890"); ok {
		t.Error("link-1 entry survived invalidation")
	}
	if _, ok := cache.get("link-2", "1234567890"); !ok {
		t.Error("link-2 entry was dropped")
	}
	if cache.size() != 1 {
		t.Errorf("cache size = %d", cache.size())
	}
}
