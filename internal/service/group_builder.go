package service

import (
	"sort"

	"github.com/samber/lo"
)

// Defaults for the grouping heuristics. All of them are overridable through SchedulerConfig.
const (
	DefaultSplitThreshold = 3
	DefaultMaxGroupSize   = 4
	DefaultMaxPoolSize    = 24
	DefaultMaxIterations  = 10
)

// DefaultFormationOrder is the order in which group sizes are formed.
var DefaultFormationOrder = []int{3, 2}

// Candidate is a pool member: an exam number and the students sitting it.
type Candidate struct {
	Number   int64
	Students []string
}

// AcceptFunc lets callers veto a candidate joining a partial group.
type AcceptFunc func(members []Candidate, next Candidate) bool

// BuiltGroup is one output of the builder. Groups of one member are singles.
type BuiltGroup struct {
	Members []Candidate
}

// Numbers returns the member numbers in insertion order.
func (g BuiltGroup) Numbers() []int64 {
	return lo.Map(g.Members, func(c Candidate, _ int) int64 { return c.Number })
}

// GroupBuilder packs a pool of same-area numbers into conflict-free groups.
//
// Each window holds at most maxPool candidates. Seed-and-extend over a window of p
// candidates costs O(p² · size) per formed group, so a whole window is bounded by
// O(p³). Pools larger than maxPool are processed window by window, carrying the
// unplaced singles forward (at most maxPool/2 of them).
type GroupBuilder struct {
	order   []int
	maxSize int
	maxPool int
}

// NewGroupBuilder normalises the heuristic parameters.
func NewGroupBuilder(order []int, maxSize, maxPool int) *GroupBuilder {
	if maxSize < 2 {
		maxSize = DefaultMaxGroupSize
	}
	sizes := lo.Filter(order, func(size int, _ int) bool { return size >= 2 && size <= maxSize })
	if len(sizes) == 0 {
		sizes = lo.Filter(DefaultFormationOrder, func(size int, _ int) bool { return size <= maxSize })
	}
	if maxPool < maxSize {
		maxPool = DefaultMaxPoolSize
	}
	return &GroupBuilder{order: sizes, maxSize: maxSize, maxPool: maxPool}
}

// MaxSize returns the largest group the builder produces.
func (b *GroupBuilder) MaxSize() int {
	return b.maxSize
}

// Build partitions pool into groups of the configured sizes. Members of every
// returned group share no student. accept may be nil.
func (b *GroupBuilder) Build(pool []Candidate, accept AcceptFunc) (groups []BuiltGroup, singles []Candidate) {
	ordered := make([]Candidate, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	var carry []Candidate
	for start := 0; start < len(ordered) || len(carry) > 0; {
		room := b.maxPool - len(carry)
		end := start + room
		if end > len(ordered) {
			end = len(ordered)
		}
		window := append(append([]Candidate{}, carry...), ordered[start:end]...)
		formed, left := b.buildWindow(window, accept)
		groups = append(groups, formed...)
		start = end

		if start >= len(ordered) {
			singles = append(singles, left...)
			break
		}
		keep := b.maxPool / 2
		if len(left) > keep {
			singles = append(singles, left[keep:]...)
			left = left[:keep]
		}
		carry = left
	}
	return groups, singles
}

func (b *GroupBuilder) buildWindow(window []Candidate, accept AcceptFunc) ([]BuiltGroup, []Candidate) {
	remaining := window
	var groups []BuiltGroup
	for _, size := range b.order {
		for {
			members, ok := seedAndExtend(remaining, size, accept)
			if !ok {
				break
			}
			groups = append(groups, BuiltGroup{Members: members})
			taken := lo.Map(members, func(c Candidate, _ int) int64 { return c.Number })
			remaining = lo.Reject(remaining, func(c Candidate, _ int) bool { return lo.Contains(taken, c.Number) })
		}
	}
	remaining = b.mergeSingles(groups, remaining, accept)
	return groups, remaining
}

// mergeSingles folds leftovers into formed groups, fullest first, never past maxSize.
func (b *GroupBuilder) mergeSingles(groups []BuiltGroup, singles []Candidate, accept AcceptFunc) []Candidate {
	var left []Candidate
	for _, single := range singles {
		idx := make([]int, len(groups))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return len(groups[idx[i]].Members) > len(groups[idx[j]].Members) })
		placed := false
		for _, i := range idx {
			if len(groups[i].Members) >= b.maxSize || !compatible(groups[i].Members, single, accept) {
				continue
			}
			groups[i].Members = append(groups[i].Members, single)
			placed = true
			break
		}
		if !placed {
			left = append(left, single)
		}
	}
	return left
}

// Expand grows targets with leftover candidates up to maxSize and returns the unused
// leftovers plus, per target index, the candidates it received.
func (b *GroupBuilder) Expand(targets [][]Candidate, leftovers []Candidate, accept AcceptFunc) ([]Candidate, map[int][]Candidate) {
	added := make(map[int][]Candidate)
	var unused []Candidate
	for _, cand := range leftovers {
		placed := false
		for i := range targets {
			if len(targets[i]) >= b.maxSize || !compatible(targets[i], cand, accept) {
				continue
			}
			targets[i] = append(targets[i], cand)
			added[i] = append(added[i], cand)
			placed = true
			break
		}
		if !placed {
			unused = append(unused, cand)
		}
	}
	return unused, added
}

// seedAndExtend scans seeds in order and greedily extends each with compatible
// members until one reaches size.
func seedAndExtend(pool []Candidate, size int, accept AcceptFunc) ([]Candidate, bool) {
	if size < 2 || len(pool) < size {
		return nil, false
	}
	for i, seed := range pool {
		members := []Candidate{seed}
		for j, next := range pool {
			if j == i {
				continue
			}
			if compatible(members, next, accept) {
				members = append(members, next)
				if len(members) == size {
					return members, true
				}
			}
		}
	}
	return nil, false
}

func compatible(members []Candidate, next Candidate, accept AcceptFunc) bool {
	for _, member := range members {
		if member.Number == next.Number || UnitsShareStudent(member.Students, next.Students) {
			return false
		}
	}
	return accept == nil || accept(members, next)
}
