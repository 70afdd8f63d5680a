package journal

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"merlin/internal/types"
)

const (
	dayLayout = "2006-01-02"
	ext       = ".jsonl"
)

// Entry is one journaled run.
type Entry struct {
	Time           string              `json:"time"`
	RunID          string              `json:"run_id"`
	Exchange       string              `json:"exchange"`
	Symbol         string              `json:"symbol"`
	Timeframe      string              `json:"timeframe"`
	Regime         types.Regime        `json:"regime"`
	Recommendation string              `json:"recommendation"`
	Composite      float64             `json:"composite_score"`
	Confidence     float64             `json:"confidence"`
	Price          float64             `json:"price"`
	Indicators     map[string]float64  `json:"indicators"`
	Provenance     types.RunProvenance `json:"provenance"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// Journal appends one JSON line per run to a file per UTC day.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

// WithClock replaces the clock used for timestamps and file rotation.
func (j *Journal) WithClock(now func() time.Time) *Journal {
	j.now = now
	return j
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) path(day time.Time) string {
	return filepath.Join(j.dir, day.UTC().Format(dayLayout)+ext)
}

// EntryFrom flattens a bundle.
func EntryFrom(b types.ResultBundle) Entry {
	ind := make(map[string]float64, len(b.Indicators.Values))
	for name, v := range b.Indicators.Values {
		ind[name] = v.Value
	}
	return Entry{
		RunID:          b.RunID,
		Exchange:       b.Request.Exchange,
		Symbol:         b.Request.Symbol,
		Timeframe:      b.Request.Timeframe,
		Regime:         b.Regime.Regime,
		Recommendation: string(b.Regime.Recommendation),
		Composite:      b.Regime.CompositeScore,
		Confidence:     b.Regime.Confidence,
		Price:          b.Indicators.Price,
		Indicators:     ind,
		Provenance:     b.Provenance,
		Warnings:       b.Warnings,
	}
}

func (j *Journal) Append(b types.ResultBundle) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	e := EntryFrom(b)
	e.Time = now.Format(time.RFC3339)

	p := j.path(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(line))
	return err
}

// Entries reads the journal for one day, compressed or not.
func (j *Journal) Entries(day time.Time) ([]Entry, error) {
	p := j.path(day)
	var r io.Reader
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		f, err = os.Open(p + ".gz")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	} else if err != nil {
		return nil, err
	} else {
		defer f.Close()
		r = f
	}

	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("journal %s: %w", filepath.Base(p), err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips day files older than retentionDays. Files that fail to
// compress are left in place.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().UTC().AddDate(0, 0, -retentionDays)
	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, d := range entries {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		day, err := time.Parse(dayLayout, strings.TrimSuffix(name, ext))
		if err != nil || !day.Before(cutoff) {
			continue
		}
		p := filepath.Join(j.dir, name)
		// already compressed on an earlier pass
		if _, err := os.Stat(p + ".gz"); err == nil {
			_ = os.Remove(p)
			continue
		}
		if err := gzipFile(p); err != nil {
			continue
		}
		_ = os.Remove(p)
	}
	return nil
}

func gzipFile(p string) error {
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(p+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(p + ".gz")
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
