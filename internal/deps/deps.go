package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Requirement names an external binary and how to ask it for a version.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	VersionArgs []string
}

// Status is the probed state of one Requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

const maxParallelProbes = 4

// Check resolves every requirement on PATH and reads versions in parallel.
// Results keep the order of reqs.
func Check(ctx context.Context, reqs []Requirement) []Status {
	out := make([]Status, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = check(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func check(ctx context.Context, req Requirement) Status {
	st := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if st.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(st.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", st.Command)
		return st
	}
	st.Available = true
	if len(req.VersionArgs) > 0 {
		st.Version = readVersion(ctx, path, req.VersionArgs)
	}
	return st
}

// Missing filters statuses down to unavailable required binaries.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, st := range statuses {
		if !st.Optional && !st.Available {
			out = append(out, st)
		}
	}
	return out
}
