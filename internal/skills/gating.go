package skills

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// GatingContext caches the lookups CheckEligibility needs so that
// checking N skills' eligibility only probes each binary/env var once.
type GatingContext struct {
	OS       string
	pathBins map[string]bool
	envVars  map[string]bool

	// Disabled names skills forced off regardless of metadata (e.g. by
	// project configuration), keyed by SkillEntry.Name.
	Disabled map[string]bool
}

// NewGatingContext builds a GatingContext against the running process's
// actual OS and environment.
func NewGatingContext(disabled map[string]bool) *GatingContext {
	return &GatingContext{
		OS:       runtime.GOOS,
		pathBins: make(map[string]bool),
		envVars:  make(map[string]bool),
		Disabled: disabled,
	}
}

// CheckBinary reports whether name resolves on PATH, caching the result.
func (c *GatingContext) CheckBinary(name string) bool {
	if v, ok := c.pathBins[name]; ok {
		return v
	}
	_, err := exec.LookPath(name)
	v := err == nil
	c.pathBins[name] = v
	return v
}

// CheckEnv reports whether an environment variable is set, caching the
// result.
func (c *GatingContext) CheckEnv(name string) bool {
	if v, ok := c.envVars[name]; ok {
		return v
	}
	_, ok := os.LookupEnv(name)
	c.envVars[name] = ok
	return ok
}

// EligibilityResult is CheckEligibility's verdict plus, when ineligible,
// the reason a UI or log line can surface.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// CheckEligibility evaluates whether s should be offered to the agent
// in the current environment: disabled override, then Always, then
// OS/bin/env requirements in that order.
func (s *SkillEntry) CheckEligibility(ctx *GatingContext) EligibilityResult {
	if ctx.Disabled[s.Name] {
		return EligibilityResult{false, "disabled"}
	}
	meta := s.Metadata
	if meta == nil {
		return EligibilityResult{true, ""}
	}
	if meta.Always {
		return EligibilityResult{true, "always enabled"}
	}
	if len(meta.OS) > 0 {
		found := false
		for _, want := range meta.OS {
			if want == ctx.OS {
				found = true
				break
			}
		}
		if !found {
			return EligibilityResult{false, fmt.Sprintf("requires OS %v, have %s", meta.OS, ctx.OS)}
		}
	}
	if meta.Requires != nil {
		for _, bin := range meta.Requires.Bins {
			if !ctx.CheckBinary(bin) {
				return EligibilityResult{false, fmt.Sprintf("missing required binary: %s", bin)}
			}
		}
		if len(meta.Requires.AnyBins) > 0 {
			found := false
			for _, bin := range meta.Requires.AnyBins {
				if ctx.CheckBinary(bin) {
					found = true
					break
				}
			}
			if !found {
				return EligibilityResult{false, fmt.Sprintf("requires one of: %v", meta.Requires.AnyBins)}
			}
		}
		for _, env := range meta.Requires.Env {
			if !ctx.CheckEnv(env) {
				return EligibilityResult{false, fmt.Sprintf("missing environment variable: %s", env)}
			}
		}
	}
	return EligibilityResult{true, ""}
}

// FilterEligible returns the subset of entries CheckEligibility accepts.
func FilterEligible(entries []*SkillEntry, ctx *GatingContext) []*SkillEntry {
	var out []*SkillEntry
	for _, e := range entries {
		if e.CheckEligibility(ctx).Eligible {
			out = append(out, e)
		}
	}
	return out
}
