package callback

import "fmt"

// NamedHandler pairs a handler name with its function.
type NamedHandler struct {
	Name string
	Fn   HandlerFunc
}

// Bundle groups the handlers of one graph type. Application code
// declares its handlers as an explicit static list; RegisterBundles
// walks the lists once at startup.
type Bundle interface {
	GraphType() string
	Handlers() []NamedHandler
}

// RegisterBundles populates the registry from the given bundles.
func RegisterBundles(r *Registry, bundles ...Bundle) error {
	for _, b := range bundles {
		for _, h := range b.Handlers() {
			if err := r.Register(b.GraphType(), h.Name, h.Fn); err != nil {
				return fmt.Errorf("registering bundle %s: %w", b.GraphType(), err)
			}
		}
	}
	return nil
}
