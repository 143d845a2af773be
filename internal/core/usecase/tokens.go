package usecase

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Magnitude words folded into a canonical single-letter suffix so that
// "$394.3B" and "394.3 billion" produce the same token.
var magnitudeSuffixes = map[string]string{
	"trillion": "t",
	"tn":       "t",
	"billion":  "b",
	"bn":       "b",
	"million":  "m",
	"mn":       "m",
	"mm":       "m",
	"thousand": "k",
}

var magnitudeScale = map[byte]float64{
	't': 1e12,
	'b': 1e9,
	'm': 1e6,
	'k': 1e3,
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "was": {}, "were": {}, "are": {},
	"be": {}, "been": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "with": {}, "by": {}, "and": {}, "or": {}, "as": {}, "its": {},
	"it": {}, "this": {}, "that": {}, "from": {}, "has": {}, "have": {},
	"had": {}, "s": {},
}

// tokenize lowercases and splits on non-alphanumeric runs, keeping decimal
// points inside numbers and folding magnitude words onto the preceding
// number.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}

	raw := make([]string, 0, 24)
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		r = unicode.ToLower(r)
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '.' && b.Len() > 0 && i+1 < len(runes) && isDigit(runes[i+1]) && isDigit(rune(b.String()[b.Len()-1])):
			b.WriteRune(r)
		default:
			if b.Len() > 0 {
				raw = append(raw, b.String())
				b.Reset()
			}
		}
	}
	if b.Len() > 0 {
		raw = append(raw, b.String())
	}

	out := make([]string, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		token := raw[i]
		if isNumber(token) && i+1 < len(raw) {
			if suffix, ok := magnitudeSuffixes[raw[i+1]]; ok {
				out = append(out, token+suffix)
				i++
				continue
			}
			if next := raw[i+1]; len(next) == 1 {
				if _, ok := magnitudeScale[next[0]]; ok {
					out = append(out, token+next)
					i++
					continue
				}
			}
		}
		out = append(out, token)
	}
	return out
}

func contentTokenSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := stopwords[t]; ok {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNumber(token string) bool {
	if token == "" || !isDigit(rune(token[0])) {
		return false
	}
	_, err := strconv.ParseFloat(token, 64)
	return err == nil
}

// parseAmount resolves a token like "394.3b" or "2024" to its absolute value.
func parseAmount(token string) (float64, bool) {
	if token == "" || !isDigit(rune(token[0])) {
		return 0, false
	}
	scale := 1.0
	last := token[len(token)-1]
	numeric := token
	if s, ok := magnitudeScale[last]; ok {
		scale = s
		numeric = token[:len(token)-1]
	}
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, false
	}
	return v * scale, true
}

// scaledAmounts extracts the magnitude-suffixed values asserted in tokens,
// in reading order. Plain integers (years, counts) are excluded so that a
// matching fiscal year never masks a conflicting dollar figure.
func scaledAmounts(tokens []string) []float64 {
	out := make([]float64, 0, 4)
	for _, t := range tokens {
		if t == "" || !isDigit(rune(t[0])) {
			continue
		}
		if _, ok := magnitudeScale[t[len(t)-1]]; !ok {
			continue
		}
		if v, ok := parseAmount(t); ok {
			out = append(out, v)
		}
	}
	return out
}

func relativeDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
