package preflight

import (
	"context"
	"strings"

	"github.com/idiotf/entry-video-compress/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks a conversion depends on for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Output directory is created on first write.
	if strings.TrimSpace(cfg.Paths.OutputDir) != "" {
		results = append(results, CheckCreatableDirectory("Output directory", cfg.Paths.OutputDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, checkBinary(ctx, status))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
