package stats

import (
	"errors"
	"slices"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

var ErrEmpty = errors.New("empty input")

// Mean returns the arithmetic mean of numbers.
func Mean[T Number](numbers []T) (float64, error) {
	if len(numbers) == 0 {
		return 0, &emptyError{op: "mean"}
	}

	var sum float64
	for _, n := range numbers {
		sum += float64(n)
	}
	return sum / float64(len(numbers)), nil
}

// Median returns the middle value of numbers, or the mean of the two middle
// values when the length is even. numbers is not modified.
func Median[T Number](numbers []T) (float64, error) {
	if len(numbers) == 0 {
		return 0, &emptyError{op: "median"}
	}

	sorted := slices.Clone(numbers)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (float64(sorted[mid-1]) + float64(sorted[mid])) / 2, nil
	}
	return float64(sorted[mid]), nil
}

type emptyError struct {
	op string
}

func (e *emptyError) Error() string {
	return "Cannot calculate " + e.op + " of empty list"
}

func (e *emptyError) Unwrap() error {
	return ErrEmpty
}
