package sim

import (
	"fmt"
	"slices"
	"strings"

	"github.com/encodeous/opera/state"
	"github.com/samber/lo"
)

type Edge = state.Pair[state.NodeId, state.NodeId]


// symbol is either a node address in canonical form or a group name
func parseSymbol(s string, nodes []state.NodeId, groups []string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if lo.Contains(groups, s) {
		return s, nil
	}
	id, err := state.ParseNodeId(s)
	if err != nil {
		return "", fmt.Errorf(`%s is not a valid node/group`, s)
	}
	if !lo.Contains(nodes, id) {
		return "", fmt.Errorf(`node %s is not part of the topology`, id)
	}
	return id.String(), nil
}

func parseSymbolList(s string, nodes []state.NodeId, groups []string) ([]string, error) {
	line := make([]string, 0)
	for _, x := range strings.Split(s, ",") {
		if strings.TrimSpace(x) == "" {
			continue
		}
		sym, err := parseSymbol(x, nodes, groups)
		if err != nil {
			return nil, err
		}
		line = append(line, sym)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	return line, nil
}

/*
ParseGraph expands a link description into the set of radio links.

	relays = 0x1, 0x2, 0x3
	edge = 0x4, 0x5

	relays, edge, 0x6 // relays, edge and 0x6 are linked to each other, but not within relays or edge
	relays, relays    // every relay hears every other relay
	0x8, 0x9          // a single link

Groups may contain other groups as long as the definitions are acyclic.
*/
func ParseGraph(graph []string, nodes []state.NodeId) ([]Edge, error) {
	lines := lo.Filter(lo.Map(graph, func(l string, _ int) string {
		if i := strings.Index(l, "//"); i >= 0 {
			l = l[:i]
		}
		return strings.ToLower(strings.TrimSpace(l))
	}), func(l string, _ int) bool { return l != "" })

	// pass 0, collect group names
	var groups []string
	for _, line := range lines {
		name, _, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.Count(line, "=") != 1 {
			return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
		}
		name = strings.TrimSpace(name)
		if _, err := state.ParseNodeId(name); err == nil || name == "" {
			return nil, fmt.Errorf("group name must not be a node address: %q", name)
		}
		if lo.Contains(groups, name) {
			return nil, fmt.Errorf("duplicate group name: %s", name)
		}
		groups = append(groups, name)
	}

	// pass 1, parse definitions and link lines
	members := make(map[string][]string)
	var links [][]string
	for _, line := range lines {
		if name, list, ok := strings.Cut(line, "="); ok {
			lst, err := parseSymbolList(list, nodes, groups)
			if err != nil {
				return nil, err
			}
			members[strings.TrimSpace(name)] = lst
			continue
		}
		lst, err := parseSymbolList(line, nodes, groups)
		if err != nil {
			return nil, err
		}
		if len(lst) < 2 {
			return nil, fmt.Errorf("invalid link line, %v", lst)
		}
		links = append(links, lst)
	}

	// pass 2, expand groups in dependency order
	expansion := make(map[string][]state.NodeId)
	pending := slices.Clone(groups)
	for len(pending) > 0 {
		ready := lo.Filter(pending, func(g string, _ int) bool {
			return lo.EveryBy(members[g], func(m string) bool {
				_, done := expansion[m]
				return !lo.Contains(groups, m) || done
			})
		})
		if len(ready) == 0 {
			slices.Sort(pending)
			return nil, fmt.Errorf("cycle detected in graph: %v", pending)
		}
		for _, g := range ready {
			expansion[g] = lo.Uniq(lo.FlatMap(members[g], func(m string, _ int) []state.NodeId {
				if lo.Contains(groups, m) {
					return expansion[m]
				}
				id, _ := state.ParseNodeId(m)
				return []state.NodeId{id}
			}))
		}
		pending = lo.Without(pending, ready...)
	}
	resolve := func(sym string) []state.NodeId {
		if ids, ok := expansion[sym]; ok {
			return ids
		}
		id, _ := state.ParseNodeId(sym)
		return []state.NodeId{id}
	}

	// pass 3, every pair of symbols on a line is linked
	edges := make([]Edge, 0)
	for _, lst := range links {
		for i := range lst {
			for _, other := range lst[:i] {
				for _, a := range resolve(lst[i]) {
					for _, b := range resolve(other) {
						if a != b {
							edges = append(edges, state.MakeSortedPair(a, b))
						}
					}
				}
			}
		}
	}
	state.SortPairs(edges)
	return slices.Compact(edges), nil
}
