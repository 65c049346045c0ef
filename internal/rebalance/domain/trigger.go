package domain

import "fmt"

// Trigger identifies what prompted a rebalancing run.
type Trigger string

const (
	TriggerManual        Trigger = "manual"
	TriggerQuickAdd      Trigger = "quick-add"
	TriggerEnergyChange  Trigger = "energy-change"
	TriggerDailyRefresh  Trigger = "daily-refresh"
	TriggerScheduleDrift Trigger = "schedule-drift"
)

// Validate rejects unknown triggers before any persistence happens.
func (t Trigger) Validate() error {
	switch t {
	case TriggerManual, TriggerQuickAdd, TriggerEnergyChange, TriggerDailyRefresh, TriggerScheduleDrift:
		return nil
	default:
		return &ValidationError{Field: "trigger", Reason: fmt.Sprintf("unknown trigger %q", string(t))}
	}
}
