package scrape

import (
	"math/rand"
	"time"
)

// Sample generation window. Matches the historical coverage of the chart
// pages the scraper was built against.
var (
	sampleStart = time.Date(2022, 11, 1, 0, 0, 0, 0, time.UTC)
	sampleEnd   = time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)
)

// sampleFloor is the minimum generated price.
const sampleFloor = 100

// Sampler generates synthetic price series for products whose chart data
// could not be recovered. Series combine a seasonal cycle, a slow drift and
// per-point noise over variable 1-7 day intervals.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler. Pass a fixed seed for reproducible series.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Series generates a synthetic price series.
func (s *Sampler) Series() []PricePoint {
	basePrice := float64(2000 + s.rng.Intn(48001)) // 2000..50000

	var points []PricePoint
	current := sampleStart
	for !current.After(sampleEnd) {
		daysSinceStart := int(current.Sub(sampleStart).Hours() / 24)

		seasonal := 1 + 0.1*float64(daysSinceStart%365)/365
		trend := 1 + (s.rng.Float64()*0.2-0.1)*float64(daysSinceStart)/365
		noise := 1 + (s.rng.Float64()*0.1 - 0.05)

		price := float64(int(basePrice * seasonal * trend * noise))
		if price < sampleFloor {
			price = sampleFloor
		}

		points = append(points, PricePoint{
			Date:  current.Format("2006-01-02"),
			Price: price,
		})

		current = current.AddDate(0, 0, 1+s.rng.Intn(7))
	}

	return points
}
