// Package scheduler runs configured prompts against the engine on a
// timer — a nightly `/compact`, a periodic housekeeping instruction, or
// any other maintenance turn a host wants to fire without a human
// driving chat. Grounded on the teacher's internal/cron package,
// narrowed from its four job types (message/agent/webhook/custom) to
// the single "prompt" shape this runtime's engine understands, and from
// its multi-channel ExecutionStore to a simpler in-memory run history.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduleConfig is the on-disk shape of one job's timing: exactly one
// of Cron, Every, or At must be set.
type ScheduleConfig struct {
	Cron     string        `yaml:"cron,omitempty" json:"cron,omitempty"`
	Every    time.Duration `yaml:"every,omitempty" json:"every,omitempty"`
	At       string        `yaml:"at,omitempty" json:"at,omitempty"` // RFC3339 or "2006-01-02 15:04"
	Timezone string        `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Schedule is a parsed ScheduleConfig, ready to compute run times.
type Schedule struct {
	kind     string
	cronExpr string
	every    time.Duration
	at       time.Time
	timezone string
}

// NewSchedule parses cfg into a Schedule, validating the cron
// expression (if any) up front so a malformed job is rejected at
// registration time instead of at its first tick.
func NewSchedule(cfg ScheduleConfig) (Schedule, error) {
	if strings.TrimSpace(cfg.Cron) == "" && cfg.Every == 0 && strings.TrimSpace(cfg.At) == "" {
		return Schedule{}, fmt.Errorf("scheduler: schedule requires one of cron, every, or at")
	}
	sched := Schedule{
		cronExpr: strings.TrimSpace(cfg.Cron),
		every:    cfg.Every,
		timezone: strings.TrimSpace(cfg.Timezone),
	}
	if strings.TrimSpace(cfg.At) != "" {
		at, err := parseAt(cfg.At, sched.timezone)
		if err != nil {
			return Schedule{}, err
		}
		sched.at = at
		sched.kind = "at"
		return sched, nil
	}
	if sched.every > 0 {
		sched.kind = "every"
		return sched, nil
	}
	if _, err := cronParser.Parse(sched.cronExpr); err != nil {
		return Schedule{}, fmt.Errorf("scheduler: invalid cron expression: %w", err)
	}
	sched.kind = "cron"
	return sched, nil
}

// Next returns the next run time strictly after now, and false if the
// schedule has no further runs (a one-shot "at" job already past).
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.kind {
	case "at":
		if s.at.IsZero() {
			return time.Time{}, false, fmt.Errorf("scheduler: at-schedule missing timestamp")
		}
		if now.After(s.at) {
			return time.Time{}, false, nil
		}
		return s.at, true, nil
	case "every":
		if s.every <= 0 {
			return time.Time{}, false, fmt.Errorf("scheduler: every-schedule missing duration")
		}
		return now.Add(s.every), true, nil
	case "cron":
		loc := now.Location()
		if s.timezone != "" {
			if tz, err := time.LoadLocation(s.timezone); err == nil {
				loc = tz
			}
		}
		schedule, err := cronParser.Parse(s.cronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("scheduler: parse cron expression: %w", err)
		}
		next := schedule.Next(now.In(loc))
		return next, !next.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("scheduler: unknown schedule kind %q", s.kind)
	}
}

func parseAt(value, tz string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("scheduler: at-schedule value required")
	}
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			if parsed, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
				return parsed, nil
			}
			if parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc); err == nil {
				return parsed, nil
			}
		}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse("2006-01-02 15:04", value); err == nil {
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("scheduler: invalid at-schedule value %q", value)
}
