package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "TRIALSTATS_"
	envConfigFile = envPrefix + "CONFIG"
	policyEnvKey  = "missing_policy__"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TRIALSTATS_CONFIG is set
//  3. env (prefix TRIALSTATS_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, wrapLoad(path, err)
		}
	}

	// TRIALSTATS_STORE_DRIVER -> store_driver (flat keys, underscores kept).
	// TRIALSTATS_MISSING_POLICY__VOICE_ACCURACY -> missing_policy.voice_accuracy.
	envProvider := env.Provider(envPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, wrapLoad("env", err)
	}

	cfg := *base
	cfg.MissingPolicy = make(map[string]string, len(base.MissingPolicy))
	for name, p := range base.MissingPolicy {
		cfg.MissingPolicy[name] = p
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, wrapLoad("unmarshal", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
	if s == "config" {
		return ""
	}
	if family, ok := strings.CutPrefix(s, policyEnvKey); ok {
		return "missing_policy." + family
	}
	return s
}
