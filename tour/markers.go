package tour

import "time"

// MarkerPolicy controls which placed markers are kept.
type MarkerPolicy struct {
	// IgnoreLastMarker drops markers that land within the last
	// IgnoreLastSlices samples. Some devices emit a lap automatically when the
	// recording is stopped.
	IgnoreLastMarker bool
	IgnoreLastSlices int
}

// PlaceMarkers assigns each marker the index of the first slice whose
// tour-relative time is at or after the marker's. Markers must be sorted by
// time; the slice cursor only moves forward. A marker at or past the last
// slice takes the last index and ends placement. Markers that cannot be
// placed are dropped.
func PlaceMarkers(slices []TimeSlice, start time.Time, markers []*LapMarker, policy MarkerPolicy) []*LapMarker {
	if len(slices) == 0 || len(markers) == 0 {
		return nil
	}

	last := len(slices) - 1
	lastRel := relativeSeconds(slices[last].Time, start)

	placed := make([]*LapMarker, 0, len(markers))
	seen := make(map[*LapMarker]struct{}, len(markers))
	cursor := 0

	for _, marker := range markers {
		if marker == nil {
			continue
		}
		markerRel := relativeSeconds(marker.Time, start)

		idx := last
		stop := markerRel >= lastRel
		if !stop {
			for cursor < last && relativeSeconds(slices[cursor].Time, start) < markerRel {
				cursor++
			}
			idx = cursor
		}

		if !suppressed(idx, len(slices), policy) {
			if _, dup := seen[marker]; !dup {
				seen[marker] = struct{}{}
				marker.SerieIndex = idx
				marker.RelativeTime = relativeSeconds(slices[idx].Time, start)
				placed = append(placed, marker)
			}
		}
		if stop {
			break
		}
	}
	return placed
}

func suppressed(idx, sliceCount int, policy MarkerPolicy) bool {
	if !policy.IgnoreLastMarker || policy.IgnoreLastSlices <= 0 {
		return false
	}
	return idx >= sliceCount-policy.IgnoreLastSlices
}
