// Package config provides configuration loading and validation for the
// distillation pipeline.
package config

import (
	"fmt"
	"math"

	"github.com/fitsenseai/distill/internal/logging"
)

// Provider names recognized by the teacher client.
const (
	ProviderMock             = "mock"
	ProviderOpenAICompatible = "openai_compatible"
)

// SplitEpsilon is the tolerance when checking that split ratios sum to 1.
const SplitEpsilon = 1e-6

// Config is the root pipeline configuration.
type Config struct {
	DataRoot    string         `koanf:"data_root"`
	ReportsRoot string         `koanf:"reports_root"`
	Logging     logging.Config `koanf:"logging"`
	Teacher     TeacherConfig  `koanf:"teacher"`
	Acceptance  Acceptance     `koanf:"acceptance"`
	Split       SplitConfig    `koanf:"split"`
	QA          QAConfig       `koanf:"qa"`
}

// TeacherConfig controls the teacher-capability client.
type TeacherConfig struct {
	Provider        string   `koanf:"provider"`
	EndpointURL     string   `koanf:"endpoint_url"`
	ModelName       string   `koanf:"model_name"`
	APIKeyEnv       string   `koanf:"api_key_env"`
	Timeout         Duration `koanf:"timeout"`
	MaxRetries      int      `koanf:"max_retries"`
	BackoffBase     Duration `koanf:"backoff_base"`
	Temperature     float64  `koanf:"temperature"`
	TopP            float64  `koanf:"top_p"`
	MaxOutputTokens int      `koanf:"max_output_tokens"`
	Workers         int      `koanf:"workers"`
	RateLimitPerSec float64  `koanf:"rate_limit_per_s"`
	RateBurst       int      `koanf:"rate_burst"`
	MaxQueries      int      `koanf:"max_queries"` // 0 means no cap
}

// Acceptance controls which teacher responses qualify for the dataset.
type Acceptance struct {
	MinResponseLen        int  `koanf:"min_response_len"`
	MaxResponseLen        int  `koanf:"max_response_len"`
	RequirePostValidation bool `koanf:"require_post_validation"`
	RejectOnSafetyFlags   bool `koanf:"reject_on_safety_flags"`
}

// SplitRatios are the target train/val/test proportions.
type SplitRatios struct {
	Train float64 `koanf:"train" json:"train"`
	Val   float64 `koanf:"val" json:"val"`
	Test  float64 `koanf:"test" json:"test"`
}

// Sum returns the total of the three ratios.
func (r SplitRatios) Sum() float64 {
	return r.Train + r.Val + r.Test
}

// SplitConfig controls deterministic stratified partitioning.
type SplitConfig struct {
	Ratios       SplitRatios `koanf:"ratios"`
	StratifyKeys []string    `koanf:"stratify_keys"`
	Seed         int64       `koanf:"seed"`
	Tolerance    float64     `koanf:"tolerance"`
}

// BiasConfig controls the bias-gap analysis.
type BiasConfig struct {
	QualityProxy string  `koanf:"quality_proxy"`
	MinGroupSize int     `koanf:"min_group_size"`
	GapThreshold float64 `koanf:"gap_threshold"`
}

// QAConfig controls the quality-gate passes.
type QAConfig struct {
	MinResponseLen      int        `koanf:"min_response_len"`
	MaxResponseLen      int        `koanf:"max_response_len"`
	DuplicateThreshold  int        `koanf:"duplicate_threshold"`
	SplitRatioTolerance float64    `koanf:"split_ratio_tolerance"`
	Bias                BiasConfig `koanf:"bias"`
}

// Validate checks the whole configuration, returning a *ConfigError for the
// first violation found.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return &ConfigError{Field: "data_root", Reason: "must not be empty"}
	}
	if c.ReportsRoot == "" {
		return &ConfigError{Field: "reports_root", Reason: "must not be empty"}
	}
	if err := c.Teacher.Validate(); err != nil {
		return err
	}
	if c.Acceptance.MinResponseLen < 0 {
		return &ConfigError{Field: "acceptance.min_response_len", Reason: "must not be negative"}
	}
	if c.Acceptance.MaxResponseLen > 0 && c.Acceptance.MaxResponseLen < c.Acceptance.MinResponseLen {
		return &ConfigError{Field: "acceptance.max_response_len", Reason: "must not be below min_response_len"}
	}
	if err := c.Split.Validate(); err != nil {
		return err
	}
	if err := c.QA.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the teacher-client configuration.
func (t *TeacherConfig) Validate() error {
	switch t.Provider {
	case ProviderMock:
	case ProviderOpenAICompatible:
		if t.EndpointURL == "" {
			return &ConfigError{Field: "teacher.endpoint_url", Reason: "required for openai_compatible provider"}
		}
		if t.APIKeyEnv == "" {
			return &ConfigError{Field: "teacher.api_key_env", Reason: "required for openai_compatible provider"}
		}
	default:
		return &ConfigError{Field: "teacher.provider", Reason: fmt.Sprintf("unknown provider %q (want mock or openai_compatible)", t.Provider)}
	}
	if t.MaxRetries < 0 {
		return &ConfigError{Field: "teacher.max_retries", Reason: "must not be negative"}
	}
	if t.Workers < 1 {
		return &ConfigError{Field: "teacher.workers", Reason: "must be at least 1"}
	}
	if t.RateLimitPerSec <= 0 {
		return &ConfigError{Field: "teacher.rate_limit_per_s", Reason: "must be positive"}
	}
	return nil
}

// Validate checks the split configuration. Ratios must sum to 1 within
// SplitEpsilon and each ratio must be non-negative.
func (s *SplitConfig) Validate() error {
	for _, r := range []struct {
		name  string
		value float64
	}{
		{"split.ratios.train", s.Ratios.Train},
		{"split.ratios.val", s.Ratios.Val},
		{"split.ratios.test", s.Ratios.Test},
	} {
		if r.value < 0 || r.value > 1 {
			return &ConfigError{Field: r.name, Reason: "must be in [0, 1]"}
		}
	}
	if math.Abs(s.Ratios.Sum()-1.0) > SplitEpsilon {
		return &ConfigError{Field: "split.ratios", Reason: fmt.Sprintf("must sum to 1.0, got %v", s.Ratios.Sum())}
	}
	if len(s.StratifyKeys) == 0 {
		return &ConfigError{Field: "split.stratify_keys", Reason: "must name at least one key"}
	}
	if s.Tolerance < 0 {
		return &ConfigError{Field: "split.tolerance", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks the quality-gate configuration.
func (q *QAConfig) Validate() error {
	if q.MinResponseLen < 0 {
		return &ConfigError{Field: "qa.min_response_len", Reason: "must not be negative"}
	}
	if q.MaxResponseLen > 0 && q.MaxResponseLen < q.MinResponseLen {
		return &ConfigError{Field: "qa.max_response_len", Reason: "must not be below min_response_len"}
	}
	if q.SplitRatioTolerance < 0 {
		return &ConfigError{Field: "qa.split_ratio_tolerance", Reason: "must not be negative"}
	}
	if q.Bias.MinGroupSize < 1 {
		return &ConfigError{Field: "qa.bias.min_group_size", Reason: "must be at least 1"}
	}
	if q.Bias.GapThreshold < 0 {
		return &ConfigError{Field: "qa.bias.gap_threshold", Reason: "must not be negative"}
	}
	return nil
}
