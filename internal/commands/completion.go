// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// Completer offers prefix completion for command names and the first
// argument of commands that declare ArgValues.
type Completer struct {
	registry *Registry
}

// NewCompleter creates a completer over the registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns full-line candidates for the input typed so far.
func (c *Completer) Complete(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}

	name, rest, hasArgs := strings.Cut(line, " ")
	if !hasArgs {
		return c.completeNames(strings.ToLower(name))
	}

	cmd := c.registry.Get(strings.ToLower(name))
	if cmd == nil || len(cmd.ArgValues) == 0 || strings.Contains(rest, " ") {
		return nil
	}
	var out []string
	for _, v := range cmd.ArgValues {
		if strings.HasPrefix(v, strings.ToLower(rest)) {
			out = append(out, name+" "+v)
		}
	}
	return out
}

func (c *Completer) completeNames(partial string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if strings.HasPrefix(n, partial) && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, cmd := range c.registry.All() {
		add(cmd.Name)
	}
	// Aliases only when no primary name matches.
	if len(out) == 0 {
		for alias := range c.registry.aliases {
			add(alias)
		}
	}
	sort.Strings(out)
	return out
}
