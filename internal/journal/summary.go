package journal

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"merlin/internal/types"
)

// SummaryRow aggregates one day of runs for a single market.
type SummaryRow struct {
	Exchange      string  `csv:"exchange"`
	Symbol        string  `csv:"symbol"`
	Timeframe     string  `csv:"timeframe"`
	Runs          int     `csv:"runs"`
	Long          int     `csv:"long"`
	Short         int     `csv:"short"`
	Neutral       int     `csv:"neutral"`
	Volatile      int     `csv:"volatile_runs"`
	Synthetic     int     `csv:"synthetic_runs"`
	AvgComposite  float64 `csv:"avg_composite"`
	AvgConfidence float64 `csv:"avg_confidence"`
	LastRegime    string  `csv:"last_regime"`
	LastPrice     float64 `csv:"last_price"`
}

// SummaryPath is where Summarize writes the CSV for day.
func (j *Journal) SummaryPath(day time.Time) string {
	return filepath.Join(j.dir, "summary", day.UTC().Format(dayLayout)+".csv")
}

// Summarize reads one day of the journal and writes a CSV with one row per
// market plus a TOTAL row. It returns "" when nothing was journaled that day.
func (j *Journal) Summarize(day time.Time) (string, error) {
	entries, err := j.Entries(day)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	rows := Aggregate(entries)
	if len(rows) == 0 {
		return "", nil
	}

	out := j.SummaryPath(day)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return "", err
	}
	return out, nil
}

// Aggregate groups entries by exchange, symbol and timeframe, sorted, and
// appends a TOTAL row. Entries must be in journal order so the last regime
// and price are the latest ones.
func Aggregate(entries []Entry) []SummaryRow {
	if len(entries) == 0 {
		return nil
	}
	type acc struct {
		row                   SummaryRow
		composite, confidence float64
	}
	groups := map[string]*acc{}
	total := &acc{row: SummaryRow{Symbol: "TOTAL"}}

	for _, e := range entries {
		key := e.Exchange + "|" + e.Symbol + "|" + e.Timeframe
		g := groups[key]
		if g == nil {
			g = &acc{row: SummaryRow{Exchange: e.Exchange, Symbol: e.Symbol, Timeframe: e.Timeframe}}
			groups[key] = g
		}
		for _, a := range []*acc{g, total} {
			a.row.Runs++
			switch types.Recommendation(e.Recommendation) {
			case types.RecommendLong:
				a.row.Long++
			case types.RecommendShort:
				a.row.Short++
			default:
				a.row.Neutral++
			}
			if e.Regime == types.RegimeVolatile {
				a.row.Volatile++
			}
			if e.Provenance.Market == types.ProvenanceSynthetic {
				a.row.Synthetic++
			}
			a.composite += e.Composite
			a.confidence += e.Confidence
		}
		g.row.LastRegime = string(e.Regime)
		g.row.LastPrice = e.Price
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]SummaryRow, 0, len(keys)+1)
	for _, k := range append(keys, "") {
		a := total
		if k != "" {
			a = groups[k]
		}
		n := float64(a.row.Runs)
		a.row.AvgComposite = round(a.composite/n, 4)
		a.row.AvgConfidence = round(a.confidence/n, 4)
		rows = append(rows, a.row)
	}
	return rows
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
