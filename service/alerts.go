package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hygrod/hygrod/config"
)

// alertRule is one compiled alert expression with its optional clear
// expression. Activation is tracked per sensor and edge triggered: the rule
// fires once when it turns true and clears when the clear expression turns
// true, or when the rule itself turns false if no clear expression is set.
// While both rule and clear hold, the rule wins and the alert stays active.
type alertRule struct {
	cfg     config.AlertConfig
	program *vm.Program
	clear   *vm.Program

	mu        sync.Mutex
	active    map[string]bool
	fired     uint64
	lastFired time.Time
}

// alertEvent is the transition one evaluation produced.
type alertEvent int

const (
	alertNone alertEvent = iota
	alertFired
	alertCleared
)

// AlertStatus is the externally visible state of one alert rule.
type AlertStatus struct {
	Name      string     `json:"name"`
	Rule      string     `json:"rule"`
	Active    []string   `json:"active,omitempty"`
	Fired     uint64     `json:"fired"`
	LastFired *time.Time `json:"last_fired,omitempty"`
}

func compileAlerts(cfgs []config.AlertConfig) ([]*alertRule, error) {
	options := []expr.Option{
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}
	rules := make([]*alertRule, 0, len(cfgs))
	for _, cfg := range cfgs {
		program, err := expr.Compile(cfg.Rule, options...)
		if err != nil {
			return nil, fmt.Errorf("alert %s: compile rule: %w", cfg.Name, err)
		}
		rule := &alertRule{cfg: cfg, program: program, active: make(map[string]bool)}
		if cfg.Clear != "" {
			rule.clear, err = expr.Compile(cfg.Clear, options...)
			if err != nil {
				return nil, fmt.Errorf("alert %s: compile clear rule: %w", cfg.Name, err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ruleEnv builds the expression environment for one sensor status.
func ruleEnv(status SensorStatus, now time.Time) map[string]interface{} {
	env := map[string]interface{}{
		"sensor": status.Sensor,
		"ok":     status.LastError == "",
		"reads":  status.Reads,
	}
	var failures uint64
	for _, count := range status.Errors {
		failures += count
	}
	env["failures"] = failures
	if status.Reading != nil {
		env["model"] = status.Reading.Model
		env["location"] = status.Reading.Location
		env["temperature"] = status.Reading.Temperature
		env["humidity"] = status.Reading.Humidity
		env["dew_point"] = status.Reading.DewPoint
		env["age_seconds"] = now.Sub(status.Reading.Timestamp).Seconds()
	}
	return env
}

func runBool(program *vm.Program, env map[string]interface{}) (bool, error) {
	value, err := vm.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", value)
	}
	return result, nil
}

// evaluate runs the rule against one sensor status and reports the
// transition, if any.
func (a *alertRule) evaluate(status SensorStatus, now time.Time) (alertEvent, error) {
	env := ruleEnv(status, now)

	a.mu.Lock()
	wasActive := a.active[status.Sensor]
	a.mu.Unlock()

	raw, err := runBool(a.program, env)
	if err != nil {
		return alertNone, err
	}

	if wasActive {
		if raw {
			return alertNone, nil
		}
		if a.clear != nil {
			cleared, err := runBool(a.clear, env)
			if err != nil {
				return alertNone, err
			}
			if !cleared {
				return alertNone, nil
			}
		}
		a.mu.Lock()
		delete(a.active, status.Sensor)
		a.mu.Unlock()
		return alertCleared, nil
	}

	if !raw {
		return alertNone, nil
	}
	a.mu.Lock()
	a.active[status.Sensor] = true
	a.fired++
	a.lastFired = now
	a.mu.Unlock()
	return alertFired, nil
}

// message renders the alert message for a firing sensor.
func (a *alertRule) message(status SensorStatus) string {
	if a.cfg.Message != "" {
		return fmt.Sprintf("%s (sensor %s)", a.cfg.Message, status.Sensor)
	}
	return fmt.Sprintf("alert %s fired for sensor %s", a.cfg.Name, status.Sensor)
}

// clearedMessage renders the falling edge notification.
func (a *alertRule) clearedMessage(status SensorStatus) string {
	return fmt.Sprintf("alert %s cleared for sensor %s", a.cfg.Name, status.Sensor)
}

func (a *alertRule) status() AlertStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := AlertStatus{
		Name:  a.cfg.Name,
		Rule:  a.cfg.Rule,
		Fired: a.fired,
	}
	if len(a.active) > 0 {
		status.Active = make([]string, 0, len(a.active))
		for sensor := range a.active {
			status.Active = append(status.Active, sensor)
		}
		sort.Strings(status.Active)
	}
	if !a.lastFired.IsZero() {
		at := a.lastFired
		status.LastFired = &at
	}
	return status
}
