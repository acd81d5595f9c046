package shrink

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Item is one compressible image in a plan.
type Item struct {
	ID     int64
	Path   string
	Size   int64 // current byte size on disk
	Target int64 // byte budget assigned by Plan, 0 until planned
}

// Plan holds the result of the cap search for one budget.
type Plan struct {
	Budget    int64
	Cap       int64 // per-image byte cap, 0 when nothing fits
	Total     int64 // projected total after compression
	Deficit   int64 // bytes over budget when infeasible, 0 otherwise
	Ratio     float64
	NoWork    bool // originals already fit the budget
	Items     []Item
	shrinkCnt int
}

// floorFor is the smallest size an image may be compressed to. An image
// can only lose so much before it stops being useful, so the floor is a
// fixed fraction of the original size, rounded up.
func floorFor(size int64, ratio float64) int64 {
	f := int64(math.Ceil(float64(size) * ratio))
	if f < 1 {
		f = 1
	}
	return f
}

// targetFor assigns an image its byte target under a given cap. Images
// already under the cap are left alone. Oversized images aim for the
// cap, but never below their floor.
func targetFor(size, cap int64, ratio float64) int64 {
	if size <= cap {
		return size
	}
	f := floorFor(size, ratio)
	if cap < f {
		return f
	}
	return cap
}

func totalAt(items []Item, cap int64, ratio float64) int64 {
	var total int64
	for _, it := range items {
		total += targetFor(it.Size, cap, ratio)
	}
	return total
}

// NewPlan searches for the largest per-image cap whose projected total
// fits the budget. A larger cap means less compression, so the search
// maximizes retained quality. When even the floors exceed the budget the
// plan is infeasible and carries the deficit instead.
func NewPlan(items []Item, budget int64, ratio float64) (*Plan, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", budget)
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("floor ratio must be in (0, 1], got %f", ratio)
	}

	p := &Plan{Budget: budget, Ratio: ratio, Items: make([]Item, len(items))}
	copy(p.Items, items)

	var maxSize, rawTotal int64
	for _, it := range p.Items {
		rawTotal += it.Size
		if it.Size > maxSize {
			maxSize = it.Size
		}
	}

	if rawTotal <= budget {
		p.NoWork = true
		p.Cap = maxSize
		p.Total = rawTotal
		for i := range p.Items {
			p.Items[i].Target = p.Items[i].Size
		}
		return p, nil
	}

	if minTotal := totalAt(p.Items, 0, ratio); minTotal > budget {
		p.Deficit = minTotal - budget
		p.Total = minTotal
		p.Cap = 0
		for i := range p.Items {
			p.Items[i].Target = floorFor(p.Items[i].Size, ratio)
			if p.Items[i].Target < p.Items[i].Size {
				p.shrinkCnt++
			}
		}
		return p, nil
	}

	// totalAt is monotone non-decreasing in cap, so binary search for
	// the largest cap still within budget.
	lo, hi := int64(0), maxSize
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if totalAt(p.Items, mid, ratio) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	p.Cap = lo
	p.Total = totalAt(p.Items, lo, ratio)
	for i := range p.Items {
		p.Items[i].Target = targetFor(p.Items[i].Size, lo, ratio)
		if p.Items[i].Target < p.Items[i].Size {
			p.shrinkCnt++
		}
	}
	return p, nil
}

// ShrinkCount reports how many images the plan actually compresses.
func (p *Plan) ShrinkCount() int {
	return p.shrinkCnt
}

// Summary renders a one-line human description of the plan.
func (p *Plan) Summary() string {
	switch {
	case p.NoWork:
		return fmt.Sprintf("originals already fit: %s within the %s budget",
			humanize.IBytes(uint64(p.Total)), humanize.IBytes(uint64(p.Budget)))
	case p.Deficit > 0:
		return fmt.Sprintf("budget unreachable: the quality floors need %s, %s over the %s budget",
			humanize.IBytes(uint64(p.Total)), humanize.IBytes(uint64(p.Deficit)), humanize.IBytes(uint64(p.Budget)))
	default:
		return fmt.Sprintf("cap %s compresses %d of %d images to %s (budget %s)",
			humanize.IBytes(uint64(p.Cap)), p.shrinkCnt, len(p.Items),
			humanize.IBytes(uint64(p.Total)), humanize.IBytes(uint64(p.Budget)))
	}
}
