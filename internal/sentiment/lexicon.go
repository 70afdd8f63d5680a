package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// normalisation constant of the VADER compound score
const alpha = 15.0

// negated terms keep this share of their valence with the sign flipped
const negationScale = -0.74

// Lexicon scores short financial texts such as headlines. Each matched term
// contributes its valence, negation within the three preceding tokens flips
// it, and the sum is squashed into [-1, 1].
type Lexicon struct {
	valence   map[string]float64
	negations map[string]bool
	boosters  map[string]float64
}

func NewLexicon() *Lexicon {
	l := &Lexicon{
		valence:   make(map[string]float64),
		negations: make(map[string]bool),
		boosters:  make(map[string]float64),
	}
	for _, w := range positiveTerms {
		l.valence[w] = 1.5
	}
	for _, w := range strongPositiveTerms {
		l.valence[w] = 2.5
	}
	for _, w := range negativeTerms {
		l.valence[w] = -1.5
	}
	for _, w := range strongNegativeTerms {
		l.valence[w] = -2.5
	}
	for _, w := range negationTerms {
		l.negations[w] = true
	}
	for _, w := range []string{"very", "extremely", "hugely", "massive", "sharply", "significantly"} {
		l.boosters[w] = 0.3
	}
	for _, w := range []string{"slightly", "somewhat", "marginally"} {
		l.boosters[w] = -0.3
	}
	return l
}

// Score returns the compound valence of text in [-1, 1]; 0 when nothing matched.
func (l *Lexicon) Score(text string) float64 {
	tokens := tokenize(text)
	var sum float64
	for i, tok := range tokens {
		v, ok := l.valence[tok]
		if !ok {
			continue
		}
		if i > 0 {
			if b, ok := l.boosters[tokens[i-1]]; ok {
				if v > 0 {
					v += b
				} else {
					v -= b
				}
			}
		}
		if l.negated(tokens, i) {
			v *= negationScale
		}
		sum += v
	}
	return normalize(sum)
}

func (l *Lexicon) negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-3; j-- {
		if l.negations[tokens[j]] || strings.HasSuffix(tokens[j], "n't") {
			return true
		}
	}
	return false
}

func normalize(score float64) float64 {
	if score == 0 {
		return 0
	}
	v := score / math.Sqrt(score*score+alpha)
	return math.Max(-1, math.Min(1, v))
}

// tokenize lowercases text and splits it into words, keeping inner
// apostrophes so contractions such as "isn't" survive.
func tokenize(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.Trim(cur.String(), "'"))
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cur.WriteRune(r)
		case r == '\'' || r == '’':
			if cur.Len() > 0 {
				cur.WriteRune('\'')
			}
		default:
			flush()
		}
	}
	flush()
	return words
}

// Word lists follow the Loughran-McDonald financial dictionary, extended with
// common market slang.
var positiveTerms = []string{
	"achieve", "adoption", "approval", "approved", "benefit", "better", "breakout",
	"buy", "gain", "gains", "good", "grew", "growth", "improve", "improved",
	"improvement", "inflow", "inflows", "innovation", "launch", "leading",
	"opportunity", "optimistic", "outperform", "partnership", "positive",
	"profit", "profitable", "progress", "rebound", "recover", "recovery",
	"rise", "rises", "rising", "robust", "solid", "strength", "strong",
	"success", "successful", "support", "up", "upbeat", "upgrade", "win",
}

var strongPositiveTerms = []string{
	"bullish", "boom", "excellent", "exceptional", "record", "rally", "rallies",
	"skyrocket", "soar", "soars", "surge", "surges", "tremendous",
}

var negativeTerms = []string{
	"concern", "concerns", "debt", "decline", "declines", "delay", "deficit",
	"difficult", "disappointing", "down", "downgrade", "downturn", "drop",
	"drops", "fall", "falls", "falling", "fear", "fears", "headwind", "lawsuit",
	"loss", "losses", "negative", "outflow", "outflows", "poor", "probe",
	"recession", "risk", "risks", "sell", "selloff", "slow", "slowdown",
	"uncertain", "uncertainty", "underperform", "volatile", "warning", "weak",
	"weakness", "worse",
}

var strongNegativeTerms = []string{
	"bankrupt", "bankruptcy", "bearish", "collapse", "crash", "crashes",
	"default", "exploit", "fraud", "hack", "hacked", "liquidation", "plunge",
	"plunges", "scam", "tumble", "tumbles", "worst",
}

var negationTerms = []string{
	"no", "not", "never", "none", "nobody", "nothing", "neither", "nor",
	"without", "cannot", "hardly", "barely",
}
