package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExpandRanges takes a slice of strings that may contain ranges (e.g., "0-3")
// and/or single indices (e.g., "2") and expands them into a flat, ordered
// slice of indices with duplicates removed.
//
// Examples:
//   - ["0-3"] → [0 1 2 3]
//   - ["0", "2-3", "5"] → [0 2 3 5]
//   - ["3,1-2"] → [1 2 3] (handles comma-separated within single string)
func ExpandRanges(input []string) ([]int, error) {
	seen := make(map[int]bool)
	var result []int

	for _, item := range input {
		// cobra's StringSlice already splits on commas, but quoted values may not be
		segments := strings.Split(item, ",")

		for _, segment := range segments {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}

			expanded, err := expandSegment(segment)
			if err != nil {
				return nil, err
			}
			for _, n := range expanded {
				if !seen[n] {
					seen[n] = true
					result = append(result, n)
				}
			}
		}
	}

	sort.Ints(result)
	return result, nil
}

// expandSegment handles a single segment which may be an index ("5") or a range ("1-5")
func expandSegment(segment string) ([]int, error) {
	if idx := strings.Index(segment, "-"); idx > 0 && idx < len(segment)-1 {
		startStr := strings.TrimSpace(segment[:idx])
		endStr := strings.TrimSpace(segment[idx+1:])

		start, err := strconv.Atoi(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: start value %q is not a valid number", segment, startStr)
		}

		end, err := strconv.Atoi(endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: end value %q is not a valid number", segment, endStr)
		}

		if start > end {
			return nil, fmt.Errorf("invalid range %q: start (%d) is greater than end (%d)", segment, start, end)
		}

		var result []int
		for i := start; i <= end; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	n, err := strconv.Atoi(segment)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid value %q: not a valid number", segment)
	}

	return []int{n}, nil
}
