package process

import (
	"errors"
	"math/rand"
	"time"

	"github.com/easildur24/investorcenter.ai-sub015/pkg/export"
	"github.com/easildur24/investorcenter.ai-sub015/pkg/scrape"
)

// Process is one executable skill. Params come from the task's params
// payload; the returned map becomes the task result.
type Process interface {
	Execute(params map[string]interface{}) (map[string]interface{}, error)
}

// NewProcess resolves a task type name to its skill implementation.
func NewProcess(taskTypeName string) (Process, error) {
	switch taskTypeName {
	case "scrape_listings":
		randomFunc := func() int {
			r := rand.New(rand.NewSource(time.Now().UnixNano()))
			return r.Intn(100) + 1
		}
		return scrape.NewScrapeListingsTask(randomFunc), nil
	case "export_report":
		return export.NewExportReportTask(), nil
	default:
		return nil, errors.New("unrecognized task type")
	}
}
