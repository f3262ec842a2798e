package corridor

// FillFromSlow returns a copy of fast in which every missing ISD is rebuilt
// from the slow corridor that runs over the same track. A fast station's ISD
// becomes the sum of the slow ISDs after the previous fast station up to and
// including this one. Fast record i is paired with slow record i, or with the
// first slow record when slow has fewer records. Neither input is modified.
func FillFromSlow(fast, slow *Corridor) *Corridor {
	if fast == nil || slow == nil || len(slow.Records) == 0 {
		return fast
	}

	records := make([]Record, len(fast.Records))
	for ri, rec := range fast.Records {
		ref := slow.Records[0]
		if ri < len(slow.Records) {
			ref = slow.Records[ri]
		}

		isd := make([]float64, len(fast.Stations))
		for i, station := range fast.Stations {
			switch {
			case i == 0:
				isd[i] = 0
			case i < len(rec.ISD) && rec.ISD[i] != 0:
				isd[i] = rec.ISD[i]
			default:
				isd[i] = slowSpan(slow, ref, fast.Stations[i-1], station)
			}
		}
		records[ri] = NewRecord(rec.ID, isd, len(fast.Stations))
	}

	out, _ := New(fast.Name, fast.Stations, records)
	return out
}

func slowSpan(slow *Corridor, ref Record, prev, station string) float64 {
	start, end := slow.Index(prev), slow.Index(station)
	if start < 0 || end < 0 {
		return 0
	}
	total := 0.0
	for i := start + 1; i <= end && i < len(ref.ISD); i++ {
		total += ref.ISD[i]
	}
	return total
}
