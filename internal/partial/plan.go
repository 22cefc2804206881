package partial

// Range is a half-open [Start,End) span of output indices for one chunk
// call.
type Range struct {
	Start int
	End   int
}

// Width returns the number of output indices the range covers.
func (r Range) Width() int { return r.End - r.Start }

// Plan splits [0,out) into contiguous ranges whose cost, counted in signed
// multiplies (width*in), stays within maxOps. maxOps 0 disables the bound
// and yields one full range. A single output element is the smallest
// possible chunk, so when in alone exceeds maxOps the plan still emits
// width-1 ranges.
func Plan(out, in int, maxOps uint64) []Range {
	if out <= 0 || in <= 0 {
		return nil
	}
	if maxOps == 0 {
		return []Range{{0, out}}
	}
	w := maxOps / uint64(in)
	if w > uint64(out) {
		w = uint64(out)
	}
	width := int(w)
	if width < 1 {
		width = 1
	}
	ranges := make([]Range, 0, (out+width-1)/width)
	for start := 0; start < out; start += width {
		end := start + width
		if end > out {
			end = out
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}
