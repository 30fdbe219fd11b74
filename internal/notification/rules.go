package notification

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Trigger keys for the rules file. One rule per workflow event the module
// reacts to.
const (
	TriggerReviewRequested  = "review_requested"
	TriggerReportApproved   = "report_approved"
	TriggerReportRejected   = "report_rejected"
	TriggerEscalation       = "escalation"
	TriggerStageOverdue     = "stage_overdue"
	TriggerTesterReassigned = "tester_reassigned"
)

// Rule controls whether and when one trigger produces outbox rows.
type Rule struct {
	Enabled      bool `yaml:"enabled"`
	DelayMinutes int  `yaml:"delayMinutes"`
}

// Rules maps trigger keys to their delivery rule. Triggers absent from the
// file fall back to the default (enabled, no delay).
type Rules struct {
	Triggers map[string]Rule `yaml:"triggers"`
}

// For returns the rule for a trigger, defaulting to enabled with no delay.
func (r *Rules) For(trigger string) Rule {
	if r == nil || r.Triggers == nil {
		return Rule{Enabled: true}
	}
	rule, ok := r.Triggers[trigger]
	if !ok {
		return Rule{Enabled: true}
	}
	return rule
}

// Delay returns the configured enqueue delay for a trigger.
func (r *Rules) Delay(trigger string) time.Duration {
	return time.Duration(r.For(trigger).DelayMinutes) * time.Minute
}

// LoadRules reads the notification rules file. An empty path yields the
// defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notification rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse notification rules: %w", err)
	}
	return &rules, nil
}
