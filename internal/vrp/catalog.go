package vrp

import (
	"fmt"
	"math/bits"
	"sort"
)

// MaxSkills is the number of distinct skill labels one instance may use.
const MaxSkills = 64

// SkillSet is a bitmask over the labels of a Catalog.
type SkillSet uint64

// Has reports whether every bit of want is present in s. The empty set is
// never satisfied, so a task without a known skill matches nobody.
func (s SkillSet) Has(want SkillSet) bool {
	return want != 0 && s&want == want
}

// Count returns the number of labels in the set.
func (s SkillSet) Count() int { return bits.OnesCount64(uint64(s)) }

// Catalog assigns each skill label of an instance a bit. Labels are ordered
// alphabetically so the mapping is stable for a given instance.
type Catalog struct {
	bit    map[string]SkillSet
	labels []string
}

// NewCatalog collects the labels used by the instance's agents and tasks.
func NewCatalog(in *Instance) (*Catalog, error) {
	set := map[string]struct{}{}
	for _, a := range in.Agents {
		for _, s := range a.Skills {
			set[s] = struct{}{}
		}
	}
	for _, t := range in.Tasks {
		set[t.Skill] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for s := range set {
		labels = append(labels, s)
	}
	if len(labels) > MaxSkills {
		return nil, &ValidationError{Field: "skills", Reason: fmt.Sprintf("%d distinct labels, at most %d supported", len(labels), MaxSkills)}
	}
	sort.Strings(labels)
	c := &Catalog{bit: make(map[string]SkillSet, len(labels)), labels: labels}
	for i, s := range labels {
		c.bit[s] = SkillSet(1) << uint(i)
	}
	return c, nil
}

// Bit returns the single-bit set for a label.
func (c *Catalog) Bit(label string) (SkillSet, bool) {
	b, ok := c.bit[label]
	return b, ok
}

// Mask folds labels into a set; unknown labels are ignored.
func (c *Catalog) Mask(labels []string) SkillSet {
	var s SkillSet
	for _, l := range labels {
		s |= c.bit[l]
	}
	return s
}

// Len is the number of distinct labels.
func (c *Catalog) Len() int { return len(c.labels) }

// Labels expands a set back into sorted labels.
func (c *Catalog) Labels(s SkillSet) []string {
	var out []string
	for i, l := range c.labels {
		if s&(SkillSet(1)<<uint(i)) != 0 {
			out = append(out, l)
		}
	}
	return out
}

// Eligibility is the task x agent matrix of "agent may serve task", indexed
// by position in Instance.Tasks / Instance.Agents.
type Eligibility struct {
	tasks  int
	agents int
	ok     []bool
}

// NewEligibility evaluates mask&bit for every task/agent pair.
func NewEligibility(in *Instance, c *Catalog) *Eligibility {
	e := &Eligibility{tasks: len(in.Tasks), agents: len(in.Agents), ok: make([]bool, len(in.Tasks)*len(in.Agents))}
	masks := make([]SkillSet, len(in.Agents))
	for k, a := range in.Agents {
		masks[k] = c.Mask(a.Skills)
	}
	for j, t := range in.Tasks {
		want, _ := c.Bit(t.Skill)
		for k := range in.Agents {
			e.ok[j*e.agents+k] = masks[k].Has(want)
		}
	}
	return e
}

// Eligible reports whether agent k may serve task j.
func (e *Eligibility) Eligible(j, k int) bool {
	if j < 0 || j >= e.tasks || k < 0 || k >= e.agents {
		return false
	}
	return e.ok[j*e.agents+k]
}

// Agents lists the agent positions eligible for task j.
func (e *Eligibility) Agents(j int) []int {
	var out []int
	for k := 0; k < e.agents; k++ {
		if e.Eligible(j, k) {
			out = append(out, k)
		}
	}
	return out
}
