// Package schedule derives the set of pending reminder tasks a lead should
// have from its current state. The derivation is pure; persistence and
// delivery live elsewhere.
package schedule

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds every timing offset of the reminder schedule. Offsets are
// relative to the triggering timestamp of the lead.
type Policy struct {
	Call1First      time.Duration // first seller reminder after lead creation
	Call1Second     time.Duration // second seller reminder
	Call1Escalation time.Duration // admin escalation
	Call2Delay      time.Duration // after Call_1_Time
	Call3Delay      time.Duration // after Call_2_Time
	FirstClassPre24 time.Duration // before First_Class_Date
	FirstClassPre2  time.Duration // before First_Class_Date
}

// DefaultPolicy mirrors the standing sales playbook: 1h/2h seller nudges and
// a 12h admin escalation for the first call, 2h to the second call, 24h to
// the third, and 24h/2h pre-class reminders.
func DefaultPolicy() Policy {
	return Policy{
		Call1First:      1 * time.Hour,
		Call1Second:     2 * time.Hour,
		Call1Escalation: 12 * time.Hour,
		Call2Delay:      2 * time.Hour,
		Call3Delay:      24 * time.Hour,
		FirstClassPre24: 24 * time.Hour,
		FirstClassPre2:  2 * time.Hour,
	}
}

type policyFile struct {
	Call1First      string `yaml:"call1_first"`
	Call1Second     string `yaml:"call1_second"`
	Call1Escalation string `yaml:"call1_escalation"`
	Call2Delay      string `yaml:"call2_delay"`
	Call3Delay      string `yaml:"call3_delay"`
	FirstClassPre24 string `yaml:"first_class_pre24"`
	FirstClassPre2  string `yaml:"first_class_pre2"`
}

// LoadPolicy reads a YAML policy file; fields left out keep their defaults.
// An empty path returns the default policy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read schedule policy: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse schedule policy: %w", err)
	}

	fields := []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{file.Call1First, &policy.Call1First, "call1_first"},
		{file.Call1Second, &policy.Call1Second, "call1_second"},
		{file.Call1Escalation, &policy.Call1Escalation, "call1_escalation"},
		{file.Call2Delay, &policy.Call2Delay, "call2_delay"},
		{file.Call3Delay, &policy.Call3Delay, "call3_delay"},
		{file.FirstClassPre24, &policy.FirstClassPre24, "first_class_pre24"},
		{file.FirstClassPre2, &policy.FirstClassPre2, "first_class_pre2"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil || d <= 0 {
			return Policy{}, fmt.Errorf("schedule policy %s: invalid duration %q", f.name, f.raw)
		}
		*f.target = d
	}

	if policy.Call1First >= policy.Call1Second || policy.Call1Second >= policy.Call1Escalation {
		return Policy{}, fmt.Errorf("schedule policy: call1 offsets must be strictly increasing")
	}

	return policy, nil
}
