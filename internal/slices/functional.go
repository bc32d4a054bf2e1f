// Package slices holds generic slice helpers.
package slices

// Map applies f to every element of l and collects the results.
func Map[L ~[]X, X, Y any](l L, f func(X) Y) []Y {
	r := make([]Y, len(l))
	for i, x := range l {
		r[i] = f(x)
	}
	return r
}
