package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/databanana-backend/internal/platform/envutil"
)

// Policy holds the tunables of the pipeline. Defaults come from
// DefaultPolicy, then environment variables, then an optional YAML file.
type Policy struct {
	MinCount          int           `yaml:"min_count"`
	MaxCount          int           `yaml:"max_count"`
	UnitCostCents     int64         `yaml:"unit_cost_cents"`
	MaxPolls          int           `yaml:"max_polls"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollIntervalMax   time.Duration `yaml:"poll_interval_max"`
	PollBackoff       float64       `yaml:"poll_backoff"`
	StepAttempts      int           `yaml:"step_attempts"`
	StepTimeout       time.Duration `yaml:"step_timeout"`
	SignedURLTTL      time.Duration `yaml:"signed_url_ttl"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	LabelConcurrency  int           `yaml:"label_concurrency"`
	TopTags           int           `yaml:"top_tags"`
	PreviewSize       int           `yaml:"preview_size"`
	PromptDelimiter   string        `yaml:"prompt_delimiter"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinCount:          10,
		MaxCount:          100,
		UnitCostCents:     5,
		MaxPolls:          50,
		PollInterval:      5 * time.Second,
		PollIntervalMax:   30 * time.Second,
		PollBackoff:       1,
		StepAttempts:      1,
		StepTimeout:       10 * time.Minute,
		SignedURLTTL:      7 * 24 * time.Hour,
		UploadConcurrency: 8,
		LabelConcurrency:  4,
		TopTags:           5,
		PreviewSize:       5,
		PromptDelimiter:   ";",
	}
}

func LoadPolicy() (Policy, error) {
	p := DefaultPolicy()
	p.MinCount = envutil.Int("GENERATION_MIN_COUNT", p.MinCount)
	p.MaxCount = envutil.Int("GENERATION_MAX_COUNT", p.MaxCount)
	p.UnitCostCents = envutil.Int64("GENERATION_UNIT_COST_CENTS", p.UnitCostCents)
	p.MaxPolls = envutil.Int("GENERATION_MAX_POLLS", p.MaxPolls)
	p.PollInterval = envutil.Duration("GENERATION_POLL_INTERVAL", p.PollInterval)
	p.PollIntervalMax = envutil.Duration("GENERATION_POLL_INTERVAL_MAX", p.PollIntervalMax)
	p.StepAttempts = envutil.Int("GENERATION_STEP_ATTEMPTS", p.StepAttempts)
	p.StepTimeout = envutil.Duration("GENERATION_STEP_TIMEOUT", p.StepTimeout)
	p.SignedURLTTL = envutil.Duration("GENERATION_SIGNED_URL_TTL", p.SignedURLTTL)
	p.UploadConcurrency = envutil.Int("GENERATION_UPLOAD_CONCURRENCY", p.UploadConcurrency)
	p.LabelConcurrency = envutil.Int("GENERATION_LABEL_CONCURRENCY", p.LabelConcurrency)

	if path := envutil.String("PIPELINE_CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read pipeline config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Policy{}, fmt.Errorf("parse pipeline config %s: %w", path, err)
		}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	switch {
	case p.MinCount < 1 || p.MaxCount < p.MinCount:
		return fmt.Errorf("invalid count bounds [%d,%d]", p.MinCount, p.MaxCount)
	case p.UnitCostCents <= 0:
		return fmt.Errorf("unit cost must be positive")
	case p.MaxPolls < 1:
		return fmt.Errorf("max polls must be at least 1")
	case p.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive")
	case strings.TrimSpace(p.PromptDelimiter) == "":
		return fmt.Errorf("prompt delimiter required")
	}
	return nil
}

func (p Policy) CheckCount(n int) error {
	if n < p.MinCount || n > p.MaxCount {
		return fmt.Errorf("requested_count must be an integer between %d and %d, got %d", p.MinCount, p.MaxCount, n)
	}
	return nil
}

func (p Policy) Cost(n int) int64 { return int64(n) * p.UnitCostCents }

// PollDelay returns the wait before poll attempt+1.
func (p Policy) PollDelay(attempt int) time.Duration {
	d := p.PollInterval
	if p.PollBackoff > 1 {
		for i := 0; i < attempt; i++ {
			d = time.Duration(float64(d) * p.PollBackoff)
			if p.PollIntervalMax > 0 && d >= p.PollIntervalMax {
				return p.PollIntervalMax
			}
		}
	}
	return d
}

func FormatDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func Dollars(cents int64) float64 { return float64(cents) / 100 }
