package plan

import "reflect"

// Diff describes how a reloaded plan differs from the previous one.
// Removed agents are marked ineligible for new dispatch, never deleted,
// so their task history survives the reload.
type Diff struct {
	Added   []AgentSpec
	Removed []string
	Changed []AgentSpec
}

// Compute diffs two plans by agent name
func Compute(old, updated *Plan) Diff {
	var d Diff
	oldByName := make(map[string]AgentSpec)
	if old != nil {
		for _, a := range old.Agents {
			oldByName[a.Name] = a
		}
	}
	newNames := make(map[string]bool)
	for _, a := range updated.Agents {
		newNames[a.Name] = true
		prev, ok := oldByName[a.Name]
		if !ok {
			d.Added = append(d.Added, a)
			continue
		}
		if !reflect.DeepEqual(prev, a) {
			d.Changed = append(d.Changed, a)
		}
	}
	for name := range oldByName {
		if !newNames[name] {
			d.Removed = append(d.Removed, name)
		}
	}
	return d
}
