package halts

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/units"
)

var (
	// ErrStationNotInCorridor is returned when the requested from-station is
	// not one of the corridor's stations.
	ErrStationNotInCorridor = errors.New("station not in corridor")
	// ErrAnchorNotFound is returned when the recording covers more than the
	// requested journey and no halt lies close enough to the from-station.
	ErrAnchorNotFound = errors.New("from station not found within tolerance of any halt")
)

// Matching defaults, in meters.
const (
	DefaultMaxISDDiff         = 100.0
	DefaultMaxISDDiffFast     = 175.0
	DefaultAnchorTolerance    = 250.0
	DefaultSpanToleranceRatio = 0.2
	DefaultSpanToleranceMin   = 3000.0
	DefaultForwardCorrection  = 200.0
	DefaultLookahead          = 5
)

// SwitchOver makes a semi-fast train use Corridor for expected distances
// once it has reached Station.
type SwitchOver struct {
	Station  string
	Corridor *corridor.Corridor
}

// Options tunes Match. Zero values take the package defaults. Distances are
// meters regardless of Scale; Scale only describes the halts passed in.
type Options struct {
	From, To string

	// Nominated is the fixed halt list of a fast train.
	Nominated  []string
	SwitchOver *SwitchOver

	Scale units.DistanceScale

	MaxISDDiff         float64
	AnchorTolerance    float64
	SpanToleranceRatio float64
	SpanToleranceMin   float64
	ForwardCorrection  float64
	Lookahead          int

	Tracer monitoring.Tracer
}

func (o Options) withDefaults() Options {
	if o.MaxISDDiff <= 0 {
		o.MaxISDDiff = DefaultMaxISDDiff
	}
	if o.AnchorTolerance <= 0 {
		o.AnchorTolerance = DefaultAnchorTolerance
	}
	if o.SpanToleranceRatio <= 0 {
		o.SpanToleranceRatio = DefaultSpanToleranceRatio
	}
	if o.SpanToleranceMin <= 0 {
		o.SpanToleranceMin = DefaultSpanToleranceMin
	}
	if o.ForwardCorrection < 0 {
		o.ForwardCorrection = 0
	} else if o.ForwardCorrection == 0 {
		o.ForwardCorrection = DefaultForwardCorrection
	}
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.Tracer == nil {
		o.Tracer = monitoring.NopTracer{}
	}
	return o
}

// Result is the outcome of matching. Stations maps each matched station to
// the halt distance it was assigned, in the caller's scale. Ordered is the
// target station list the halts were aligned against.
type Result struct {
	Stations    map[string]float64 `json:"halting_stations"`
	Ordered     []string           `json:"ordered_stations"`
	AnchorIndex int                `json:"anchor_index"`
	Unmatched   []float64          `json:"unmatched_halts,omitempty"`
}

// Matched returns the number of matched stations.
func (r Result) Matched() int { return len(r.Stations) }

type matcher struct {
	opts    Options
	halts   []float64
	ordered []string

	primary   *corridor.Corridor
	alternate *corridor.Corridor
	switchPos int
	switched  bool
}

// Match aligns sorted halt distances with the stations of c. The first halt
// is anchored to the from-station, then each later halt is compared by
// inter-station distance against the next few target stations. A halt that
// fits no candidate within tolerance is left unmatched and its distance keeps
// accumulating into the next comparison.
//
// Only structurally invalid input is an error: a corridor without stations,
// or a from-station missing from the corridor. ErrAnchorNotFound comes back
// with a Result that carries the target list but no stations.
func Match(halts []float64, c *corridor.Corridor, opts Options) (Result, error) {
	res := Result{Stations: map[string]float64{}, AnchorIndex: -1}
	if c == nil || len(c.Stations) == 0 {
		return res, corridor.ErrNoStations
	}
	opts = opts.withDefaults()

	from := corridor.NormalizeStation(opts.From)
	to := corridor.NormalizeStation(opts.To)
	if from != "" && !c.Has(from) {
		return res, fmt.Errorf("%w: %s not in %s", ErrStationNotInCorridor, from, c.Name)
	}

	res.Ordered = targetStations(c, from, to, opts.Nominated)
	if len(halts) == 0 {
		return res, nil
	}

	m := &matcher{
		opts:      opts,
		halts:     make([]float64, len(halts)),
		ordered:   res.Ordered,
		primary:   c,
		switchPos: -1,
	}
	for i, h := range halts {
		m.halts[i] = opts.Scale.ToMeters(h)
	}
	if so := opts.SwitchOver; so != nil && so.Corridor != nil {
		m.alternate = so.Corridor
		m.switchPos = indexOf(res.Ordered, corridor.NormalizeStation(so.Station))
		if m.switchPos < 0 {
			opts.Tracer.Trace(monitoring.TraceEvent{
				Stage: monitoring.StageSwitchOver, HaltIndex: -1, Station: so.Station,
				Note: "switch-over station not on route, ignoring",
			})
			m.alternate = nil
		}
	}

	anchor, err := m.anchor(c, from, to)
	if err != nil {
		return res, err
	}
	res.AnchorIndex = anchor
	res.Stations[res.Ordered[0]] = m.out(m.halts[anchor])

	cur := 0
	last := m.halts[anchor]
	for hi := anchor + 1; hi < len(m.halts); hi++ {
		acc := m.halts[hi] - last
		cand, diff, ok := m.bestCandidate(hi, cur, acc)
		if !ok {
			res.Unmatched = append(res.Unmatched, m.out(m.halts[hi]))
			opts.Tracer.Trace(monitoring.TraceEvent{
				Stage: monitoring.StageUnmatched, HaltIndex: hi, Station: m.ordered[cur],
				Actual: acc, Note: "no candidate within tolerance",
			})
			continue
		}

		chosen := m.forwardCorrect(hi, cur, cand, last, diff)
		for k := hi; k < chosen; k++ {
			res.Unmatched = append(res.Unmatched, m.out(m.halts[k]))
		}
		res.Stations[m.ordered[cand]] = m.out(m.halts[chosen])

		cur = cand
		last = m.halts[chosen]
		hi = chosen
	}
	return res, nil
}

func (m *matcher) out(v float64) float64 {
	return m.opts.Scale.FromMeters(v)
}

// anchor picks the halt matched to the first target station.
func (m *matcher) anchor(c *corridor.Corridor, from, to string) (int, error) {
	tr := m.opts.Tracer
	if from == "" || to == "" {
		tr.Trace(monitoring.TraceEvent{
			Stage: monitoring.StageAnchor, HaltIndex: 0, Station: m.ordered[0],
			Actual: m.halts[0], Accepted: true, Note: "first halt is first station",
		})
		return 0, nil
	}

	km := c.KMMap()
	fromKM, okFrom := km[from]
	toKM, okTo := km[to]
	if !okFrom || !okTo {
		tr.Trace(monitoring.TraceEvent{
			Stage: monitoring.StageAnchor, HaltIndex: 0, Station: m.ordered[0],
			Actual: m.halts[0], Accepted: true, Note: "endpoint without official position",
		})
		return 0, nil
	}

	official := math.Abs(toKM - fromKM)
	span := m.halts[len(m.halts)-1] - m.halts[0]
	tolerance := math.Max(official*m.opts.SpanToleranceRatio, m.opts.SpanToleranceMin)
	if d := math.Abs(span - official); d <= tolerance {
		tr.Trace(monitoring.TraceEvent{
			Stage: monitoring.StageAnchor, HaltIndex: 0, Station: from,
			Expected: official, Actual: span, Diff: d, Accepted: true,
			Note: "recording starts at from station",
		})
		return 0, nil
	}

	best, bestDiff := 0, math.Inf(1)
	for i, h := range m.halts {
		if d := math.Abs(h - fromKM); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	accepted := bestDiff <= m.opts.AnchorTolerance
	tr.Trace(monitoring.TraceEvent{
		Stage: monitoring.StageAnchor, HaltIndex: best, Station: from,
		Expected: fromKM, Actual: m.halts[best], Diff: bestDiff, Accepted: accepted,
		Note: "recording starts before from station",
	})
	if !accepted {
		return -1, fmt.Errorf("%w: %s, closest halt %.0f m away", ErrAnchorNotFound, from, bestDiff)
	}
	return best, nil
}

// bestCandidate returns the nearest target station, up to Lookahead
// positions ahead of cur, whose expected distance is within MaxISDDiff of acc.
func (m *matcher) bestCandidate(hi, cur int, acc float64) (cand int, diff float64, ok bool) {
	for la := 1; la <= m.opts.Lookahead && cur+la < len(m.ordered); la++ {
		idx := cur + la
		exp, rec, found := m.expected(hi, cur, idx, acc)
		ev := monitoring.TraceEvent{
			Stage: monitoring.StageCandidate, HaltIndex: hi,
			Station: m.ordered[cur], Candidate: m.ordered[idx], Actual: acc,
		}
		if !found {
			ev.Note = "no usable record"
			m.opts.Tracer.Trace(ev)
			continue
		}
		d := math.Abs(acc - exp)
		ev.Record, ev.Expected, ev.Diff = rec, exp, d
		ev.Accepted = d <= m.opts.MaxISDDiff
		m.opts.Tracer.Trace(ev)
		if ev.Accepted {
			return idx, d, true
		}
	}
	return 0, 0, false
}

// forwardCorrect looks for a later halt within ForwardCorrection of halt hi
// that fits the accepted candidate more closely.
func (m *matcher) forwardCorrect(hi, cur, cand int, last, diff float64) int {
	chosen, best := hi, diff
	for k := hi + 1; k < len(m.halts) && m.halts[k]-m.halts[hi] <= m.opts.ForwardCorrection; k++ {
		acc := m.halts[k] - last
		exp, rec, ok := m.expected(k, cur, cand, acc)
		if !ok {
			continue
		}
		if d := math.Abs(acc - exp); d < best {
			chosen, best = k, d
			m.opts.Tracer.Trace(monitoring.TraceEvent{
				Stage: monitoring.StageCorrection, HaltIndex: k,
				Station: m.ordered[cur], Candidate: m.ordered[cand], Record: rec,
				Expected: exp, Actual: acc, Diff: d, Accepted: true,
				Note: fmt.Sprintf("replaces halt %d", hi),
			})
		}
	}
	return chosen
}

// expected estimates the distance between target stations cur and cand from
// the active corridor, falling back to the other corridor of a semi-fast
// pair.
func (m *matcher) expected(hi, cur, cand int, acc float64) (float64, string, bool) {
	active, other := m.primary, m.alternate
	if m.alternate != nil && cur >= m.switchPos {
		active, other = m.alternate, m.primary
		if !m.switched {
			m.switched = true
			m.opts.Tracer.Trace(monitoring.TraceEvent{
				Stage: monitoring.StageSwitchOver, HaltIndex: hi, Station: m.ordered[cur],
				Accepted: true, Note: "using " + active.Name,
			})
		}
	}

	start, end := m.ordered[cur], m.ordered[cand]
	if exp, rec, ok := ExpectedDistance(active, start, end, acc); ok {
		return exp, rec, true
	}
	if other != nil {
		return ExpectedDistance(other, start, end, acc)
	}
	return 0, "", false
}

// ExpectedDistance searches every record of c for the distance from start to
// end that lies closest to observed. Records without a stop at start are
// skipped, except when start is the corridor's first station.
func ExpectedDistance(c *corridor.Corridor, start, end string, observed float64) (float64, string, bool) {
	i, j := c.Index(start), c.Index(end)
	if i < 0 || j < 0 || i == j {
		return 0, "", false
	}

	best, bestRec, bestDiff := 0.0, "", math.Inf(1)
	for _, r := range c.Records {
		if i >= len(r.Cumulative) || j >= len(r.Cumulative) || !r.Stops(i) {
			continue
		}
		exp := math.Abs(r.Cumulative[j] - r.Cumulative[i])
		if exp <= 0 {
			continue
		}
		if d := math.Abs(observed - exp); d < bestDiff {
			best, bestRec, bestDiff = exp, r.ID, d
		}
	}
	return best, bestRec, !math.IsInf(bestDiff, 1)
}

// targetStations builds the station list halts are aligned against. Fast
// trains use their nominated halts in travel order; corridor stations are
// spliced in between a requested endpoint and the nearest nominated halt
// when the endpoint itself is not nominated.
func targetStations(c *corridor.Corridor, from, to string, nominated []string) []string {
	base, _, _ := c.Slice(from, to)
	if len(nominated) == 0 {
		return base
	}

	pos := make(map[string]int, len(base))
	for i, s := range base {
		if _, dup := pos[s]; !dup {
			pos[s] = i
		}
	}
	var picked []int
	seen := make(map[int]bool)
	for _, s := range nominated {
		if p, ok := pos[corridor.NormalizeStation(s)]; ok && !seen[p] {
			seen[p] = true
			picked = append(picked, p)
		}
	}
	if len(picked) == 0 {
		return base
	}
	sort.Ints(picked)

	first, last := picked[0], picked[len(picked)-1]
	out := make([]string, 0, len(picked)+first+len(base)-last)
	if from != "" && first > 0 {
		out = append(out, base[:first]...)
	}
	for _, p := range picked {
		out = append(out, base[p])
	}
	if to != "" && c.Has(to) && last < len(base)-1 {
		out = append(out, base[last+1:]...)
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
