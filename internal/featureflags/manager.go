// Package featureflags evaluates the FEATURE_FLAGS rollout list, e.g.
// "usage_tracking=25%,feed_cache=on".
package featureflags

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// UsageTracking gates per-user API time recording when it is defined.
const UsageTracking = "usage_tracking"

// rule is one parsed flag: percent 0 is off, 100 is on, anything between is
// a deterministic per-user rollout.
type rule struct {
	raw     string
	percent int
}

// Manager holds parsed flags. A nil Manager defines nothing.
type Manager struct {
	rules map[string]rule
}

// Parse rejects entries that are not name=value with a value of on, off,
// true, false, 1, 0 or N%.
func Parse(raw string) (*Manager, error) {
	m := &Manager{rules: map[string]rule{}}
	for _, entry := range strings.Split(raw, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" {
			return nil, fmt.Errorf("flag %q is not name=value", strings.TrimSpace(entry))
		}
		pct, err := parsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", name, err)
		}
		m.rules[name] = rule{raw: value, percent: pct}
	}
	return m, nil
}

// NewManager parses raw and drops malformed entries instead of failing.
func NewManager(raw string) *Manager {
	m := &Manager{rules: map[string]rule{}}
	for _, entry := range strings.Split(raw, ",") {
		if one, err := Parse(entry); err == nil {
			maps.Copy(m.rules, one.rules)
		}
	}
	return m
}

func parsePercent(value string) (int, error) {
	switch value {
	case "on", "true", "1":
		return 100, nil
	case "off", "false", "0":
		return 0, nil
	}
	digits, ok := strings.CutSuffix(value, "%")
	if !ok {
		return 0, fmt.Errorf("unsupported value %q", value)
	}
	pct, err := strconv.Atoi(digits)
	if err != nil || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("rollout %q must be between 0%% and 100%%", value)
	}
	return pct, nil
}

// Enabled evaluates name for userID. Partial rollouts never include the
// anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	r, ok := m.lookup(name)
	if !ok {
		return false
	}
	switch r.percent {
	case 0:
		return false
	case 100:
		return true
	}
	return userID != 0 && bucket(normalize(name), userID) < r.percent
}

// Defined reports whether the flag appears in the configuration at all.
func (m *Manager) Defined(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

// Allows is Enabled for defined flags and true for undefined ones, so a flag
// only restricts behavior once an operator configures it.
func (m *Manager) Allows(name string, userID uint) bool {
	if !m.Defined(name) {
		return true
	}
	return m.Enabled(name, userID)
}

// Raw returns the configured values keyed by normalized name.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func (m *Manager) lookup(name string) (rule, bool) {
	if m == nil {
		return rule{}, false
	}
	r, ok := m.rules[normalize(name)]
	return r, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bucket maps (flag, user) onto 0..99. Salting with the flag name keeps
// rollouts of different flags independent.
func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(userID))
	_, _ = h.Write(id[:])
	return int(h.Sum32() % 100)
}
