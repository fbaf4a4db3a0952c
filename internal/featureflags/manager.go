// Package featureflags gates optional client behaviour per user and per view.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Flags consulted by the client.
const (
	// CoalesceLikes queues like toggles issued while one is in flight instead of rejecting them.
	CoalesceLikes = "coalesce_likes"
	// MediaCache enables the Redis cache in front of media fetches.
	MediaCache = "media_cache"
)

// ViewMedia is the view name media fetches are evaluated under.
const ViewMedia = "media"

var known = map[string]bool{CoalesceLikes: true, MediaCache: true}

type rule struct {
	name string
	view string
}

func (r rule) String() string {
	if r.view == "" {
		return r.name
	}
	return r.name + "@" + r.view
}

// Manager evaluates flags from a comma-separated list of name[@view]=value
// rules. A rule scoped to a view overrides the unscoped rule in that view.
// Example: "coalesce_likes=on,coalesce_likes@following=off,media_cache=25%"
type Manager struct {
	rules map[rule]string
}

// NewManager parses raw. Malformed entries are skipped.
func NewManager(raw string) *Manager {
	out := make(map[rule]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, view, _ := strings.Cut(key, "@")
		r := rule{name: normalize(name), view: normalize(view)}
		value = normalize(value)
		if r.name == "" || value == "" {
			continue
		}
		out[r] = value
	}

	return &Manager{rules: out}
}

// Enabled returns whether flag name is on in view for userID.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic user rollout, e.g. 25%)
func (m *Manager) Enabled(name, view, userID string) bool {
	if m == nil {
		return false
	}
	name = normalize(name)

	value, ok := m.rules[rule{name: name, view: normalize(view)}]
	if !ok {
		value, ok = m.rules[rule{name: name}]
	}
	if !ok {
		return false
	}
	return evaluate(name, value, userID)
}

// For binds the manager to one user.
func (m *Manager) For(userID string) Set {
	return Set{m: m, userID: userID}
}

// Unknown lists configured flag names the client never consults, sorted.
func (m *Manager) Unknown() []string {
	if m == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for r := range m.rules {
		if !known[r.name] && !seen[r.name] {
			seen[r.name] = true
			out = append(out, r.name)
		}
	}
	sort.Strings(out)
	return out
}

// Raw returns a copy of the configured rules keyed name or name@view.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m.rules))
	for r, v := range m.rules {
		out[r.String()] = v
	}
	return out
}

// Snapshot evaluates every configured rule for one user, keyed like Raw.
func (m *Manager) Snapshot(userID string) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(m.rules))
	for r := range m.rules {
		out[r.String()] = m.Enabled(r.name, r.view, userID)
	}
	return out
}

// Set is a Manager bound to the signed-in user. The zero Set has every flag off.
type Set struct {
	m      *Manager
	userID string
}

// Enabled returns whether flag name is on in view.
func (s Set) Enabled(name, view string) bool {
	return s.m.Enabled(name, view, s.userID)
}

func evaluate(name, value, userID string) bool {
	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if strings.HasSuffix(value, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil || pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if userID == "" {
			return false
		}
		return rolloutBucket(name, userID) < pct
	}

	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%s", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
