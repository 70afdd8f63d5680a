package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"merlin/internal/types"
)

// JSON writes the full bundle, indented.
func JSON(w io.Writer, b types.ResultBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Text writes the human report printed by `merlin analyze`.
func Text(w io.Writer, b types.ResultBundle) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p := &printer{w: tw}

	p.linef("=== MERLIN %s SNAPSHOT ===", b.Request.Symbol)
	p.linef("Symbol:\t%s on %s", b.Request.Symbol, b.Request.Exchange)
	p.linef("Timeframe:\t%s\tLast: %s", b.Request.Timeframe, Price(b.Indicators.Price))
	if b.Indicators.LatestTs > 0 {
		p.linef("Latest candle:\t%s", time.UnixMilli(b.Indicators.LatestTs).UTC().Format(time.RFC3339))
	}
	market := string(b.Provenance.Market)
	if b.Provenance.MarketStale {
		market += " (stale)"
	}
	p.linef("Data:\t%s, %d candles", market, b.Indicators.Candles)

	p.line("--- Technicals ---")
	names := make([]string, 0, len(b.Indicators.Values))
	for name := range b.Indicators.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := b.Indicators.Values[name]
		window := fmt.Sprintf("%d", v.Window)
		if v.Window != v.Requested {
			window = fmt.Sprintf("%d of %d", v.Window, v.Requested)
		}
		p.linef("%s:\t%s\t(window %s)%s", name, Number(v.Value, 4), window, components(v.Components))
	}
	if len(b.Indicators.Omitted) > 0 {
		p.linef("omitted:\t%s", strings.Join(b.Indicators.Omitted, ", "))
	}

	p.line("--- Sentiment ---")
	s := b.Sentiment
	p.linef("provenance:\t%s", s.Provenance)
	if s.Informative() {
		p.linef("compound:\t%s", Number(s.Compound, 3))
		p.linef("bias:\t%s", Number(s.Bias, 3))
		p.linef("buzz:\t%d documents in %dh", s.Count, s.WindowHours)
	}

	p.line("--- Regime ---")
	r := b.Regime
	p.linef("regime:\t%s", r.Regime)
	p.linef("recommendation:\t%s", r.Recommendation)
	p.linef("composite_score:\t%s", Number(r.CompositeScore, 4))
	p.linef("confidence:\t%s", Percent(r.Confidence))
	p.linef("completeness:\t%s", Percent(r.Completeness))
	for _, f := range r.Factors {
		status := ""
		if !f.Available {
			status = "\tunavailable"
		}
		p.linef("  %s\t%s x %s = %s%s", f.Name, Number(f.Score, 3), Number(f.Weight, 2), Number(f.Contribution, 4), status)
	}
	if len(r.Tags) > 0 {
		p.linef("tags:\t%s", strings.Join(r.Tags, ", "))
	}

	if in := b.Insight; in != nil {
		p.line("--- Insight ---")
		if in.Summary != "" {
			p.line(in.Summary)
		}
		p.line(in.Rationale)
		p.linef("Recommendation:\t%s (%s)", in.Recommendation, in.Provider)
		if len(in.Risks) > 0 {
			p.linef("Risks:\t%s", strings.Join(in.Risks, "; "))
		}
		if len(in.KeyLevels) > 0 {
			p.linef("Key levels:\t%s", strings.Join(in.KeyLevels, ", "))
		}
	}

	for _, warn := range b.Warnings {
		p.linef("WARNING:\t%s", warn)
	}
	if p.err != nil {
		return p.err
	}
	return tw.Flush()
}

func components(c map[string]float64) string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + Number(c[k], 4)
	}
	return " " + strings.Join(parts, " ")
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(s string) {
	if p.err == nil {
		_, p.err = fmt.Fprintln(p.w, s)
	}
}

func (p *printer) linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

// Number rounds half away from zero to places decimals.
func Number(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func Percent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// Price formats with two decimals and thousands separators.
func Price(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sign + sb.String() + "." + frac
}
