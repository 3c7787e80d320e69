package teams

import (
	"github.com/charleschow/cricket-live/internal/config"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Side identifies which team of a match a name refers to.
type Side int

const (
	SideUnknown Side = iota
	SideTeam1
	SideTeam2
)

// Registry maps every known spelling of a team (code, full name, aliases)
// to its code. Lookups are exact after normalization; there is no substring
// matching, so "Kings" never resolves to a team.
type Registry struct {
	byKey map[string]string
}

func NewRegistry(entries []config.TeamEntry) *Registry {
	r := &Registry{byKey: make(map[string]string)}
	for _, e := range entries {
		r.add(e.Code, e.Code)
		r.add(e.Name, e.Code)
		for _, a := range e.Aliases {
			r.add(a, e.Code)
		}
	}
	return r
}

func (r *Registry) add(spelling, code string) {
	k := Normalize(spelling)
	if k == "" {
		return
	}
	if prev, ok := r.byKey[k]; ok && prev != code {
		telemetry.Warnf("teams: %q maps to both %s and %s, keeping %s", spelling, prev, code, prev)
		return
	}
	r.byKey[k] = code
}

// Resolve returns the team code for any known spelling.
func (r *Registry) Resolve(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	code, ok := r.byKey[Normalize(name)]
	return code, ok
}

// Participant is one side of a match as the match record names it.
type Participant struct {
	Name string
	Code string
}

// SideOf decides whether team is the first or second participant. Direct
// name or code equality is tried first, then registry codes. Anything that
// matches neither or both sides is SideUnknown.
func (r *Registry) SideOf(team string, team1, team2 Participant) Side {
	t := Normalize(team)
	if t == "" {
		return SideUnknown
	}

	m1 := t == Normalize(team1.Name) || (team1.Code != "" && t == Normalize(team1.Code))
	m2 := t == Normalize(team2.Name) || (team2.Code != "" && t == Normalize(team2.Code))
	if m1 || m2 {
		return pick(m1, m2)
	}

	code, ok := r.Resolve(team)
	if !ok {
		return SideUnknown
	}
	return pick(r.is(team1, code), r.is(team2, code))
}

func (r *Registry) is(p Participant, code string) bool {
	if p.Code != "" && Normalize(p.Code) == Normalize(code) {
		return true
	}
	c, ok := r.Resolve(p.Name)
	return ok && c == code
}

func pick(m1, m2 bool) Side {
	switch {
	case m1 && !m2:
		return SideTeam1
	case m2 && !m1:
		return SideTeam2
	}
	return SideUnknown
}
