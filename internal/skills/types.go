// Package skills implements `.wave/skills/<name>/SKILL.md` discovery:
// reusable instruction templates an agent can load into a turn on
// demand, per SPEC_FULL.md §6's on-disk surface and the Skill tool
// spec.md §4.B lists among the "part of the spec only by contract"
// tools rather than the six engine-dispatched ones. Grounded on
// _examples/haasonsaas-nexus/internal/skills's SkillEntry/
// GatingContext/parser trio, narrowed from that teacher's git/registry
// skill sources, fsnotify hot-reload, and executable skill sub-tools
// down to this spec's plain directory scan plus OS/binary/env
// eligibility gating.
package skills

// SkillMetadata is a SKILL.md file's optional YAML front matter beyond
// name/description.
type SkillMetadata struct {
	// Always, if true, skips every eligibility check below.
	Always bool `yaml:"always,omitempty"`

	// OS restricts the skill to the named GOOS values (darwin, linux,
	// windows). Empty means no restriction.
	OS []string `yaml:"os,omitempty"`

	Requires *SkillRequires `yaml:"requires,omitempty"`
}

// SkillRequires names the preconditions CheckEligibility enforces.
type SkillRequires struct {
	// Bins must all resolve on PATH.
	Bins []string `yaml:"bins,omitempty"`
	// AnyBins requires at least one entry to resolve on PATH.
	AnyBins []string `yaml:"anyBins,omitempty"`
	// Env names environment variables that must be set.
	Env []string `yaml:"env,omitempty"`
}

// SkillEntry is one parsed `.wave/skills/<name>/SKILL.md` definition.
type SkillEntry struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Metadata    *SkillMetadata `yaml:"metadata,omitempty"`

	// Content is the markdown body after the front-matter block,
	// {baseDir}-expanded against Path.
	Content string `yaml:"-"`
	// Path is the directory SKILL.md was found in, used for
	// {baseDir} expansion and reporting.
	Path string `yaml:"-"`
}
