package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"merlin/internal/types"
)

type rawInsight struct {
	Summary        string          `json:"summary"`
	Recommendation string          `json:"recommendation"`
	Rationale      string          `json:"rationale"`
	Risks          json.RawMessage `json:"risks"`
	KeyLevels      json.RawMessage `json:"key_levels"`
}

// ParseInsight extracts the JSON object from a model reply. Replies wrapped in
// markdown fences or prose are tolerated; unparsable text becomes the rationale.
func ParseInsight(text string, bundle types.ResultBundle) types.Insight {
	fallbackRec := string(bundle.Regime.Recommendation)

	var raw rawInsight
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return types.Insight{
			Recommendation: fallbackRec,
			Rationale:      strings.TrimSpace(text),
			Risks:          []string{"Unable to parse structured risks."},
		}
	}

	rec := strings.ToUpper(strings.TrimSpace(raw.Recommendation))
	switch types.Recommendation(rec) {
	case types.RecommendLong, types.RecommendShort, types.RecommendNeutral:
	default:
		rec = fallbackRec
	}
	rationale := raw.Rationale
	if rationale == "" {
		rationale = strings.TrimSpace(text)
	}
	return types.Insight{
		Summary:        raw.Summary,
		Recommendation: rec,
		Rationale:      rationale,
		Risks:          normalizeRisks(raw.Risks),
		KeyLevels:      normalizeKeyLevels(raw.KeyLevels),
	}
}

func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	if i := strings.Index(t, "```"); i >= 0 {
		rest := t[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			t = strings.TrimSpace(rest[:j])
		}
	}
	if strings.HasPrefix(t, "{") {
		return t
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1]
	}
	return t
}

func normalizeRisks(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return []string{s}
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, plain(item))
		}
		return out
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, k+": "+plain(obj[k]))
		}
		return out
	}
	return []string{string(raw)}
}

type keyLevel struct {
	Type        string `json:"type"`
	Value       any    `json:"value"`
	Level       any    `json:"level"`
	Price       any    `json:"price"`
	Description string `json:"description"`
	Desc        string `json:"desc"`
	Note        string `json:"note"`
	Text        string `json:"text"`
}

func normalizeKeyLevels(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) != nil {
		list = []json.RawMessage{raw}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		var kl keyLevel
		if json.Unmarshal(item, &kl) != nil {
			out = append(out, plain(item))
			continue
		}
		out = append(out, kl.String())
	}
	return out
}

func (kl keyLevel) String() string {
	kind := kl.Type
	if kind == "" {
		kind = "level"
	}
	value := "N/A"
	for _, v := range []any{kl.Value, kl.Level, kl.Price} {
		if v == nil {
			continue
		}
		if f, ok := v.(float64); ok {
			value = fmt.Sprintf("%.2f", f)
		} else {
			value = fmt.Sprint(v)
		}
		break
	}
	for _, d := range []string{kl.Description, kl.Desc, kl.Note, kl.Text} {
		if d = strings.TrimSpace(d); d != "" {
			return fmt.Sprintf("%s: %s - %s", kind, value, d)
		}
	}
	return fmt.Sprintf("%s: %s", kind, value)
}

// plain renders a JSON string without quotes and anything else as compact JSON.
func plain(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
