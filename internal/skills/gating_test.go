package skills

import "testing"

func TestCheckEligibility(t *testing.T) {
	ctx := NewGatingContext(nil)

	t.Run("no metadata is eligible", func(t *testing.T) {
		entry := &SkillEntry{Name: "plain"}
		if !entry.CheckEligibility(ctx).Eligible {
			t.Error("expected eligible with no metadata")
		}
	})

	t.Run("always skips checks", func(t *testing.T) {
		entry := &SkillEntry{
			Name:     "forced",
			Metadata: &SkillMetadata{Always: true, OS: []string{"plan9"}},
		}
		if !entry.CheckEligibility(ctx).Eligible {
			t.Error("expected always=true to bypass the OS check")
		}
	})

	t.Run("disabled override wins", func(t *testing.T) {
		disabledCtx := NewGatingContext(map[string]bool{"off": true})
		entry := &SkillEntry{Name: "off"}
		result := entry.CheckEligibility(disabledCtx)
		if result.Eligible {
			t.Error("expected disabled skill to be ineligible")
		}
	})

	t.Run("wrong OS is ineligible", func(t *testing.T) {
		entry := &SkillEntry{Name: "other-os", Metadata: &SkillMetadata{OS: []string{"plan9"}}}
		if entry.CheckEligibility(ctx).Eligible {
			t.Error("expected ineligible for an OS that never matches")
		}
	})

	t.Run("missing required binary is ineligible", func(t *testing.T) {
		entry := &SkillEntry{
			Name:     "needs-bin",
			Metadata: &SkillMetadata{Requires: &SkillRequires{Bins: []string{"definitely-not-a-real-binary-xyz"}}},
		}
		if entry.CheckEligibility(ctx).Eligible {
			t.Error("expected ineligible when required binary is missing")
		}
	})
}

func TestFilterEligible(t *testing.T) {
	ctx := NewGatingContext(nil)
	entries := []*SkillEntry{
		{Name: "ok"},
		{Name: "no-os", Metadata: &SkillMetadata{OS: []string{"plan9"}}},
	}
	filtered := FilterEligible(entries, ctx)
	if len(filtered) != 1 || filtered[0].Name != "ok" {
		t.Errorf("FilterEligible = %+v, want only %q", filtered, "ok")
	}
}
