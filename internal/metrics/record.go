package metrics

// OpClassOrder is the fixed op-class order every ResultRecord reports,
// regardless of which classes the workload actually exercised.
var OpClassOrder = []string{"insert", "lookup", "update", "delete", "join", "leave", "kquery"}

// StatsView is the JSON-facing shape of Stats: null fields for an empty
// group instead of zeroed numbers, matching the external schema's
// {count,mean,median,p95} object with a sentinel for "never exercised".
type StatsView struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	P95    *float64 `json:"p95"`
}

func viewOf(s Stats) StatsView {
	if s.Empty {
		return StatsView{Count: 0}
	}
	mean, median, p95 := s.Mean, s.Median, s.P95
	return StatsView{Count: s.Count, Mean: &mean, Median: &median, P95: &p95}
}

// Params echoes the workload descriptor and seed into the result record.
type Params struct {
	N         int   `json:"n"`
	Inserts   int   `json:"inserts"`
	Lookups   int   `json:"lookups"`
	Updates   int   `json:"updates"`
	Deletes   int   `json:"deletes"`
	JoinLeave int   `json:"join_leave"`
	K         int   `json:"k"`
	Seed      int64 `json:"seed"`
}

// ResultRecord is the nested ResultRecord schema from the external
// interface: per-protocol op-class stats, echoed params, and an error
// tally.
type ResultRecord struct {
	Chord  map[string]StatsView `json:"chord"`
	Pastry map[string]StatsView `json:"pastry"`
	Params Params               `json:"params"`
	Errors map[string]int       `json:"errors"`
}

// BuildOpStats renders every OpClassOrder entry from agg into the
// map[string]StatsView shape ResultRecord expects.
func BuildOpStats(agg *Aggregator) map[string]StatsView {
	out := make(map[string]StatsView, len(OpClassOrder))
	for _, class := range OpClassOrder {
		out[class] = viewOf(agg.Stats(class))
	}
	return out
}

// GridSummaryRow is one row of the K-query grid summary: one per
// (protocol, N, join_leave).
type GridSummaryRow struct {
	Protocol      string  `json:"protocol"`
	N             int     `json:"n"`
	JoinLeave     int     `json:"join_leave"`
	K             int     `json:"k"`
	Seed          int64   `json:"seed"`
	KQueryMeanHop float64 `json:"kquery_mean_hops"`
	KQueryP95Hop  float64 `json:"kquery_p95_hops"`
}
