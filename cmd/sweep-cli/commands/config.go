package commands

import (
	"os"
	"time"

	"procheck-sweep/lib/configutil"
	"procheck-sweep/lib/ratelimit"
	"procheck-sweep/lib/retrier"
)

type Config struct {
	PortalUrl string `json:"portal_url"`
	UserAgent string `json:"user_agent"`

	// letters to enumerate, empty means A-Z
	Letters []string `json:"letters"`

	BaseDelaySeconds float64 `json:"base_delay_seconds"`
	JitterSeconds    float64 `json:"jitter_seconds"`
	MaxRetries       uint    `json:"max_retries"`
	MaxDelaySeconds  float64 `json:"max_delay_seconds"`

	FlushEvery       int `json:"flush_every"`
	DeepFlushEvery   int `json:"deep_flush_every"`
	CapWarnThreshold int `json:"cap_warn_threshold"`

	CheckpointFile string `json:"checkpoint_file"`
	ResultsDb      string `json:"results_db"`
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("sweep.json5")
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}

	if cfg.PortalUrl == "" {
		cfg.PortalUrl = "https://reports.myreca.ca/publicsearch.aspx"
	}
	if cfg.BaseDelaySeconds <= 0 {
		cfg.BaseDelaySeconds = 2.0
	}
	if cfg.JitterSeconds <= 0 {
		cfg.JitterSeconds = 1.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxDelaySeconds <= 0 {
		cfg.MaxDelaySeconds = 60.0
	}
	if cfg.CheckpointFile == "" {
		cfg.CheckpointFile = "data/sweep_checkpoint.json"
	}
	if cfg.ResultsDb == "" {
		cfg.ResultsDb = "data/agents.db"
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) limiter() *ratelimit.Limiter {
	return ratelimit.New(seconds(c.BaseDelaySeconds), seconds(c.JitterSeconds))
}

func (c Config) retryPolicy() retrier.Policy {
	return retrier.Policy{
		Attempts:  c.MaxRetries,
		BaseDelay: seconds(c.BaseDelaySeconds),
		MaxDelay:  seconds(c.MaxDelaySeconds),
		MaxJitter: seconds(c.JitterSeconds),
	}
}
