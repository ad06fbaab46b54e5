package pipeline

import "slices"

// Stages groups the steps by depth. A step lands one stage after the deepest of its upstream
// steps, so the steps of a stage never depend on each other. Within a stage steps keep their
// topological order.
func (p *Pipeline) Stages() [][]string {
	depth := make(map[string]int, len(p.order))

	var stages [][]string

	for _, id := range p.order {
		level := 0

		for _, up := range p.upstream[id] {
			if depth[up]+1 > level {
				level = depth[up] + 1
			}
		}

		depth[id] = level

		if level == len(stages) {
			stages = append(stages, nil)
		}

		stages[level] = append(stages[level], id)
	}

	return stages
}

// CriticalPath returns the longest chain of dependent steps, from its first step to its last.
// On ties the chain ending earliest in topological order wins.
func (p *Pipeline) CriticalPath() []string {
	length := make(map[string]int, len(p.order))
	prev := make(map[string]string, len(p.order))

	var last string

	for _, id := range p.order {
		length[id] = 1

		for _, up := range p.upstream[id] {
			if length[up]+1 > length[id] {
				length[id] = length[up] + 1
				prev[id] = up
			}
		}

		if last == "" || length[id] > length[last] {
			last = id
		}
	}

	var path []string
	for id := last; id != ""; id = prev[id] {
		path = append(path, id)
	}

	slices.Reverse(path)

	return path
}
