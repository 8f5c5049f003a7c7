package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fetchbot/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for cfg. bot may be nil, in which
// case the Bot API check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, bot BotProber) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Ephemeral directory", cfg.Paths.EphemeralDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Ephemeral disk space", cfg.Paths.EphemeralDir, cfg.Limits.EphemeralQuotaBytes),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		if status.Optional {
			continue
		}
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Command
			if status.Version != "" {
				result.Detail += " (" + status.Version + ")"
			}
		}
		results = append(results, result)
	}
	if bot != nil {
		results = append(results, CheckBotAPI(ctx, bot))
	}
	return results
}

// Err folds failed results into a single error, or nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New("preflight failed: " + strings.Join(failed, "; "))
}
