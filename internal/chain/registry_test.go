package chain

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	defaults := Defaults()
	if len(defaults) != 2 {
		t.Fatalf("expected 2 built-in chains, got %d", len(defaults))
	}
	seen := map[string]bool{}
	for _, cfg := range defaults {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("default chain %s invalid: %v", cfg.Key, err)
		}
		if seen[cfg.Key] {
			t.Fatalf("duplicate chain key %s", cfg.Key)
		}
		seen[cfg.Key] = true
		if cfg.AvgBlockTimeSeconds == 0 {
			t.Fatalf("chain %s missing average block time", cfg.Key)
		}
	}
	if !seen["base"] || !seen["linea"] {
		t.Fatalf("expected base and linea, got %v", seen)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Defaults()[0]

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.Key = "" }},
		{"missing chain id", func(c *Config) { c.ChainID = 0 }},
		{"no endpoints", func(c *Config) { c.RPCEndpoints = nil }},
		{"bad game contract", func(c *Config) { c.GameContract = "0x123" }},
		{"bad registry contract", func(c *Config) { c.RegistryContract = "nope" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			cfg.RPCEndpoints = append([]string(nil), valid.RPCEndpoints...)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
