package genome

import (
	"fmt"
	"strconv"
	"strings"
)

// Score is an immutable vector of objective channel values. The zero Score
// means "not evaluated".
type Score struct {
	values []float64
}

func NewScore(values ...float64) Score {
	return Score{values: append([]float64(nil), values...)}
}

func (s Score) Len() int {
	return len(s.values)
}

func (s Score) IsZero() bool {
	return len(s.values) == 0
}

func (s Score) At(i int) float64 {
	return s.values[i]
}

// Float64 returns the first channel, or NaN for an unevaluated score.
func (s Score) Float64() float64 {
	if len(s.values) == 0 {
		return nan()
	}
	return s.values[0]
}

func (s Score) Values() []float64 {
	return append([]float64(nil), s.values...)
}

func (s Score) Equal(other Score) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for i := range s.values {
		if s.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

func (s Score) String() string {
	if len(s.values) == 0 {
		return "<unscored>"
	}
	if len(s.values) == 1 {
		return strconv.FormatFloat(s.values[0], 'g', 6, 64)
	}
	parts := make([]string, len(s.values))
	for i, v := range s.values {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " "))
}
