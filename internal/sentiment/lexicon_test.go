package sentiment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexiconScore(t *testing.T) {
	l := NewLexicon()

	tests := []struct {
		name string
		text string
		sign int
	}{
		{"positive", "Bitcoin rallies as ETF inflows hit a record", 1},
		{"negative", "Exchange hacked, prices crash amid fraud fears", -1},
		{"neutral", "The committee meets on Tuesday", 0},
		{"negated positive", "Analysts say this is not bullish", -1},
		{"contraction", "The outlook isn't strong", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Score(tt.text)
			switch tt.sign {
			case 1:
				assert.Greater(t, got, 0.05)
			case -1:
				assert.Less(t, got, -0.05)
			default:
				assert.Equal(t, 0.0, got)
			}
			assert.GreaterOrEqual(t, got, -1.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestNormalizeMatchesVader(t *testing.T) {
	assert.InDelta(t, 2.5/math.Sqrt(21.25), normalize(2.5), 1e-12)
	assert.Equal(t, 0.0, normalize(0))
	assert.Less(t, normalize(1000), 1.0+1e-12)
}

func TestTokenizeKeepsContractions(t *testing.T) {
	assert.Equal(t, []string{"it", "isn't", "over", "yet"}, tokenize("It isn't over... yet!"))
	assert.Equal(t, []string{"quoted"}, tokenize("'quoted'"))
}
