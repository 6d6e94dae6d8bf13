package futura

import (
	"math"

	average "github.com/RobinUS2/golang-moving-average"
)

// smoother keeps a moving average of the samples of one temperature
type smoother struct {
	avg *average.MovingAverage
}

func newSmoother(window int) *smoother {
	return &smoother{
		avg: average.New(window),
	}
}

// sample adds v and returns the average rounded to one decimal
func (s *smoother) sample(v float64) float64 {
	s.avg.Add(v)
	return math.Round(s.avg.Avg()*10) / 10
}
