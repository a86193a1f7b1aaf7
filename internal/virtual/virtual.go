// Package virtual is the windowing engine behind every calendar pane.
// An Axis answers which items intersect a viewport and where each item
// starts; callers materialize only the returned range. The engine never
// owns a scroll position.
package virtual

import "sort"

// DefaultOverscan is the number of extra items kept on each side of the
// strictly visible range.
const DefaultOverscan = 2

// Range is an inclusive index interval. It is empty when End < Start.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EmptyRange is the canonical empty interval.
var EmptyRange = Range{Start: 0, End: -1}

// Empty reports whether the range holds no indices.
func (r Range) Empty() bool { return r.End < r.Start }

// Len returns the number of indices in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether i lies inside the range.
func (r Range) Contains(i int) bool { return !r.Empty() && i >= r.Start && i <= r.End }

// Axis windows N items laid end to end along one dimension.
//
// Variable sizes are resolved through a prefix-sum cache that is extended
// lazily and truncated only by SetCount (shrinking) or Invalidate.
type Axis struct {
	count    int
	fixed    int
	size     func(int) int
	overscan int

	// prefix[i] is the offset of item i; len(prefix)-1 items are resolved.
	prefix []int
}

// NewFixed returns an axis whose items all have the same size.
func NewFixed(count, size, overscan int) *Axis {
	if size < 1 {
		size = 1
	}
	return &Axis{count: max(count, 0), fixed: size, overscan: max(overscan, 0)}
}

// NewVariable returns an axis whose item sizes come from size(index).
// size must be deterministic until Invalidate is called.
func NewVariable(count int, size func(int) int, overscan int) *Axis {
	return &Axis{
		count:    max(count, 0),
		size:     size,
		overscan: max(overscan, 0),
		prefix:   []int{0},
	}
}

// Len returns the item count.
func (a *Axis) Len() int { return a.count }

// SetCount changes the item count. Growing keeps every resolved prefix;
// shrinking drops prefixes past the new end.
func (a *Axis) SetCount(n int) {
	n = max(n, 0)
	if a.size != nil && len(a.prefix)-1 > n {
		a.prefix = a.prefix[:n+1]
	}
	a.count = n
}

// Invalidate discards cached offsets for items at index from and later.
// Call it after the size of item from has changed.
func (a *Axis) Invalidate(from int) {
	if a.size == nil {
		return
	}
	from = max(from, 0)
	if from+1 < len(a.prefix) {
		a.prefix = a.prefix[:from+1]
	}
}

// SizeOf returns the size of item i.
func (a *Axis) SizeOf(i int) int {
	if i < 0 || i >= a.count {
		return 0
	}
	if a.size == nil {
		return a.fixed
	}
	return max(a.size(i), 0)
}

// resolve extends the prefix cache through item i (offset of i+1 known).
func (a *Axis) resolve(i int) {
	for k := len(a.prefix) - 1; k <= i && k < a.count; k++ {
		a.prefix = append(a.prefix, a.prefix[k]+a.SizeOf(k))
	}
}

// OffsetOf returns the cumulative size of all items before index.
// index is clamped to [0, Len()].
func (a *Axis) OffsetOf(index int) int {
	index = min(max(index, 0), a.count)
	if a.size == nil {
		return index * a.fixed
	}
	a.resolve(index - 1)
	return a.prefix[index]
}

// TotalExtent returns the sum of all item sizes.
func (a *Axis) TotalExtent() int { return a.OffsetOf(a.count) }

// MaxOffset returns the largest scroll offset that still fills viewport.
func (a *Axis) MaxOffset(viewport int) int { return max(a.TotalExtent()-viewport, 0) }

// IndexAt returns the index of the item covering offset, clamped to
// [0, Len()-1]. It returns -1 for an empty axis.
func (a *Axis) IndexAt(offset int) int {
	if a.count == 0 {
		return -1
	}
	offset = max(offset, 0)
	if a.size == nil {
		return min(offset/a.fixed, a.count-1)
	}

	for len(a.prefix)-1 < a.count && a.prefix[len(a.prefix)-1] <= offset {
		a.resolve(len(a.prefix) - 1)
	}
	resolved := len(a.prefix) - 1
	idx := sort.Search(resolved, func(j int) bool { return a.prefix[j+1] > offset })
	return min(idx, a.count-1)
}

// VisibleRange returns the smallest index interval whose extent covers
// [offset, offset+viewport), widened by overscan and clamped to [0, Len()).
func (a *Axis) VisibleRange(offset, viewport int) Range {
	if a.count == 0 {
		return EmptyRange
	}
	start := a.IndexAt(offset)
	end := start
	if viewport > 0 {
		end = a.IndexAt(max(offset, 0) + viewport - 1)
	}
	return Range{
		Start: max(start-a.overscan, 0),
		End:   min(end+a.overscan, a.count-1),
	}
}

// Grid pairs a column axis with a row axis.
type Grid struct {
	Cols *Axis
	Rows *Axis
}

// Visible returns the column and row ranges intersecting the viewport.
func (g Grid) Visible(left, top, width, height int) (cols, rows Range) {
	return g.Cols.VisibleRange(left, width), g.Rows.VisibleRange(top, height)
}
