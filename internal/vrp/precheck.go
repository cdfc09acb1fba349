package vrp

import "sort"

// UncoveredSkills returns the task skills no agent has, sorted. An empty
// result is necessary, not sufficient, for the instance to be feasible.
func UncoveredSkills(in *Instance, c *Catalog) []string {
	var fleet SkillSet
	for _, a := range in.Agents {
		fleet |= c.Mask(a.Skills)
	}
	missing := map[string]struct{}{}
	for _, t := range in.Tasks {
		b, _ := c.Bit(t.Skill)
		if !fleet.Has(b) {
			missing[t.Skill] = struct{}{}
		}
	}
	out := make([]string, 0, len(missing))
	for s := range missing {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
