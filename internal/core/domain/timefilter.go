package domain

type FiscalQuarter struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// TimeFilter holds the fiscal periods a query is scoped to. It is built once
// from the parsed time expression and never mutated during a retrieval pass.
type TimeFilter struct {
	years    map[int]struct{}
	quarters map[FiscalQuarter]struct{}
}

func NewTimeFilter(years []int, quarters []FiscalQuarter) TimeFilter {
	f := TimeFilter{}
	if len(years) > 0 {
		f.years = make(map[int]struct{}, len(years))
		for _, y := range years {
			f.years[y] = struct{}{}
		}
	}
	if len(quarters) > 0 {
		f.quarters = make(map[FiscalQuarter]struct{}, len(quarters))
		for _, q := range quarters {
			f.quarters[q] = struct{}{}
		}
	}
	return f
}

func (f TimeFilter) Empty() bool {
	return len(f.years) == 0 && len(f.quarters) == 0
}

func (f TimeFilter) Years() []int {
	out := make([]int, 0, len(f.years))
	for y := range f.years {
		out = append(out, y)
	}
	return out
}

func (f TimeFilter) Quarters() []FiscalQuarter {
	out := make([]FiscalQuarter, 0, len(f.quarters))
	for q := range f.quarters {
		out = append(out, q)
	}
	return out
}

// Matches reports whether metadata falls inside the filter. Chunks without
// temporal metadata always match; the same-period policy is enforced by the
// temporal filter stage, not here.
func (f TimeFilter) Matches(meta ChunkMetadata) bool {
	if f.Empty() || !meta.HasPeriod() {
		return true
	}
	if _, ok := f.years[meta.FiscalYear]; ok {
		return true
	}
	if meta.FiscalQuarter != 0 {
		_, ok := f.quarters[FiscalQuarter{Year: meta.FiscalYear, Quarter: meta.FiscalQuarter}]
		return ok
	}
	// Year-granular chunk against a quarter-granular filter: accept when the
	// filter names any quarter of that year.
	for q := range f.quarters {
		if q.Year == meta.FiscalYear {
			return true
		}
	}
	return false
}
