package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fitsenseai/distill/internal/logging"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables that override file config.
const envPrefix = "DISTILL_"

// Load reads configuration with the following precedence, highest first:
//
//  1. Environment variables (DISTILL_TEACHER_PROVIDER, DISTILL_SPLIT_SEED, ...)
//  2. YAML config file, when path is non-empty
//  3. Defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	DISTILL_TEACHER_MAX_RETRIES -> teacher.max_retries
//	DISTILL_DATA_ROOT           -> data_root (no known section prefix)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sections are the top-level config groups an env var can address.
var sections = map[string]bool{
	"logging":    true,
	"teacher":    true,
	"acceptance": true,
	"split":      true,
	"qa":         true,
}

// subsections are the nested groups reachable below a section.
var subsections = map[string]map[string]bool{
	"split": {"ratios": true},
	"qa":    {"bias": true},
}

// envTransform maps DISTILL_SECTION_FIELD_NAME to section.field_name,
// descending one more level for known sub-sections
// (DISTILL_QA_BIAS_GAP_THRESHOLD -> qa.bias.gap_threshold). Variables
// whose first token is not a known section stay top-level
// (DISTILL_DATA_ROOT -> data_root).
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return lower
	}
	section, rest := parts[0], parts[1]
	sub := strings.SplitN(rest, "_", 2)
	if len(sub) == 2 && subsections[section][sub[0]] {
		return section + "." + sub[0] + "." + sub[1]
	}
	return section + "." + rest
}

// Default returns the configuration used when neither file nor environment
// provides a value. Thresholds here are policy defaults; deployments are
// expected to pin them in the config file.
func Default() *Config {
	return &Config{
		DataRoot:    "data/raw",
		ReportsRoot: "data/reports",
		Logging: logging.Config{Level: "info", Format: "json"},
		Teacher: TeacherConfig{
			Provider:        ProviderMock,
			ModelName:       "teacher-mock-v1",
			APIKeyEnv:       "OPENAI_API_KEY",
			Timeout:         Duration(30 * time.Second),
			MaxRetries:      3,
			BackoffBase:     Duration(1 * time.Second),
			Temperature:     0.2,
			TopP:            1.0,
			MaxOutputTokens: 512,
			Workers:         4,
			RateLimitPerSec: 2.0,
			RateBurst:       4,
		},
		Acceptance: Acceptance{
			MinResponseLen:        40,
			MaxResponseLen:        4000,
			RequirePostValidation: true,
			RejectOnSafetyFlags:   true,
		},
		Split: SplitConfig{
			Ratios:       SplitRatios{Train: 0.8, Val: 0.1, Test: 0.1},
			StratifyKeys: []string{"prompt_type", "goal_type"},
			Seed:         42,
			Tolerance:    0.05,
		},
		QA: QAConfig{
			MinResponseLen:      40,
			MaxResponseLen:      4000,
			DuplicateThreshold:  0,
			SplitRatioTolerance: 0.05,
			Bias: BiasConfig{
				QualityProxy: "response_length",
				MinGroupSize: 5,
				GapThreshold: 120.0,
			},
		},
	}
}
