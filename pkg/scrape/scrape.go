package scrape

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ScrapeListingsTask simulates a listing collection run. The upstream
// source flakes now and then, which exercises the retry and release paths.
type ScrapeListingsTask struct {
	RandomFunc func() int
}

// NewScrapeListingsTask is a constructor that takes a random function as a dependency
func NewScrapeListingsTask(randomFunc func() int) ScrapeListingsTask {
	return ScrapeListingsTask{
		RandomFunc: randomFunc,
	}
}

func (s ScrapeListingsTask) Execute(params map[string]interface{}) (map[string]interface{}, error) {
	slog.Info("scrape_listings parameters:", "params", params)
	time.Sleep(2 * time.Second)

	// s.RandomFunc is an injected function which returns random number between 1 and 100
	randomNumber := s.RandomFunc()
	// The simulated source fails for 20% of runs
	if randomNumber <= 20 {
		slog.Warn("Error occurred while scraping the source", "params", params)
		return nil, errors.New("scrape_listings failed")
	}

	source := "unknown"
	if v, ok := params["source"].(string); ok {
		source = v
	}

	collected := randomNumber
	return map[string]interface{}{
		"source":          source,
		"items_collected": collected,
		"summary":         fmt.Sprintf("collected %d items from %s", collected, source),
	}, nil
}
