package chunk

import "github.com/mahaj/chunkchat/pkg/config"

// OptionsFromConfig overlays the configured tunables on DefaultOptions.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.MaxBatchSize > 0 {
		opts.MaxBatchSize = cfg.MaxBatchSize
	}
	if cfg.MaxPending >= 0 {
		opts.MaxPending = cfg.MaxPending
	}
	if cfg.BatchInterval > 0 {
		opts.BatchInterval = cfg.BatchInterval
	}
	if cfg.FlushInterval > 0 {
		opts.FlushInterval = cfg.FlushInterval
	}
	if cfg.FlushMargin > 0 {
		opts.FlushMargin = cfg.FlushMargin
	}
	if cfg.MaxDirtyAge >= 0 {
		opts.MaxDirtyAge = cfg.MaxDirtyAge
	}
	return opts
}
