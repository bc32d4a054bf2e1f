package symbiotic

import "github.com/ayazip/symbiotic/internal/slices"

// Rewrite records one instrumented call site.
type Rewrite struct {
	// Name of the enclosing function.
	Function string
	// Derived name of the registered object, "Function:Variable:Line" for
	// replaced nondet calls (Variable may be empty or "--") and
	// "Function:dynalloc:Line" for augmented allocations.
	Name string
	// 1-based source line of the call, 0 when it had no debug location.
	Line int
	// Value passed as the registrar's identifier argument. Identifiers of
	// replaced calls form the contiguous run 1..N in rewrite order;
	// augmented allocations count separately.
	Identifier int
}

// Result summarizes one Instrument invocation.
type Result struct {
	// Nondet stub calls replaced by registered stack slots.
	Replaced []Rewrite
	// Allocation calls augmented with a registration of their memory.
	Augmented []Rewrite
}

// Changed reports whether the pass rewrote anything.
func (r Result) Changed() bool {
	return len(r.Replaced) > 0 || len(r.Augmented) > 0
}

// Names returns the derived names of all rewrites, replacements first, in
// rewrite order.
func (r Result) Names() []string {
	name := func(rw Rewrite) string { return rw.Name }
	return append(slices.Map(r.Replaced, name), slices.Map(r.Augmented, name)...)
}
