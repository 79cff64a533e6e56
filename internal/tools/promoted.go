package tools

import "sort"

// Factory builds a promoted tool instance.
type Factory func() Tool

var promoted = map[string]Factory{}

// RegisterPromotedFactory records a compiled tool factory under name.
// Boot code calls this from init hooks; the registry installs promoted
// tools after persisted definitions load, so a promoted tool shadows a
// same-named JSON definition.
func RegisterPromotedFactory(name string, f Factory) {
	promoted[name] = f
}

// LoadPromoted installs every registered promoted factory. Returns the
// number of tools installed.
func (r *Registry) LoadPromoted() (int, error) {
	names := make([]string, 0, len(promoted))
	for name := range promoted {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		tool := promoted[name]()
		if tool.Name() != name {
			r.logger.Warn("promoted factory name mismatch", "registered", name, "tool", tool.Name())
			continue
		}
		if err := r.registerPromoted(tool); err != nil {
			r.logger.Warn("skipping promoted tool", "tool", name, "error", err)
			continue
		}
		count++
	}
	return count, nil
}
