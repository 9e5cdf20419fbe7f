package core

import (
	"fmt"
	"strings"
	"time"
)

// PipelineConfig bounds the batch commit discipline and the worker runtime.
type PipelineConfig struct {
	BatchCommitSize          int     `koanf:"batch_commit_size" mapstructure:"batch_commit_size"`
	UseSingleTransaction     bool    `koanf:"use_single_transaction" mapstructure:"use_single_transaction"`
	MaxErrorPercentage       float64 `koanf:"max_error_percentage" mapstructure:"max_error_percentage"`
	JobMaxAttempts           int     `koanf:"job_max_attempts" mapstructure:"job_max_attempts"`
	JobClaimLeaseSeconds     int     `koanf:"job_claim_lease_seconds" mapstructure:"job_claim_lease_seconds"`
	BatchFlushTimeoutSeconds int     `koanf:"batch_flush_timeout_seconds" mapstructure:"batch_flush_timeout_seconds"`
	JobTimeoutSeconds        int     `koanf:"job_timeout_seconds" mapstructure:"job_timeout_seconds"`
	WorkerConcurrency        int     `koanf:"worker_concurrency" mapstructure:"worker_concurrency"`
	PollIntervalSeconds      int     `koanf:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Pipeline    PipelineConfig `koanf:"pipeline" mapstructure:"pipeline"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "mailroom",
		Pipeline: PipelineConfig{
			BatchCommitSize:          10,
			UseSingleTransaction:     false,
			MaxErrorPercentage:       25,
			JobMaxAttempts:           3,
			JobClaimLeaseSeconds:     60,
			BatchFlushTimeoutSeconds: 30,
			JobTimeoutSeconds:        120,
			WorkerConcurrency:        4,
			PollIntervalSeconds:      1,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	return c.Pipeline.Validate()
}

func (p PipelineConfig) Validate() error {
	if p.BatchCommitSize <= 0 {
		return fmt.Errorf("core: batch_commit_size must be positive")
	}
	if p.MaxErrorPercentage < 0 || p.MaxErrorPercentage > 100 {
		return fmt.Errorf("core: max_error_percentage must be between 0 and 100")
	}
	if p.JobMaxAttempts <= 0 {
		return fmt.Errorf("core: job_max_attempts must be positive")
	}
	if p.JobClaimLeaseSeconds <= 0 {
		return fmt.Errorf("core: job_claim_lease_seconds must be positive")
	}
	if p.BatchFlushTimeoutSeconds <= 0 {
		return fmt.Errorf("core: batch_flush_timeout_seconds must be positive")
	}
	if p.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("core: job_timeout_seconds must be positive")
	}
	if p.WorkerConcurrency <= 0 {
		return fmt.Errorf("core: worker_concurrency must be positive")
	}
	if p.PollIntervalSeconds <= 0 {
		return fmt.Errorf("core: poll_interval_seconds must be positive")
	}
	return nil
}

// CommitMode resolves the configured commit discipline.
func (p PipelineConfig) CommitMode() CommitMode {
	if p.UseSingleTransaction {
		return CommitModeSingleTransaction
	}
	return CommitModePerItem
}

func (p PipelineConfig) ClaimLease() time.Duration {
	return time.Duration(p.JobClaimLeaseSeconds) * time.Second
}

func (p PipelineConfig) BatchFlushTimeout() time.Duration {
	return time.Duration(p.BatchFlushTimeoutSeconds) * time.Second
}

func (p PipelineConfig) JobTimeout() time.Duration {
	return time.Duration(p.JobTimeoutSeconds) * time.Second
}

func (p PipelineConfig) PollInterval() time.Duration {
	if p.PollIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(p.PollIntervalSeconds) * time.Second
}
