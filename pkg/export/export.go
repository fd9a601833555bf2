package export

import (
	"fmt"
	"log/slog"
	"time"
)

type ExportReportTask struct{}

func NewExportReportTask() ExportReportTask {
	return ExportReportTask{}
}

func (e ExportReportTask) Execute(params map[string]interface{}) (map[string]interface{}, error) {
	slog.Info("export_report parameters:", "params", params)
	time.Sleep(3 * time.Second)

	format := "csv"
	if v, ok := params["format"].(string); ok {
		format = v
	}

	return map[string]interface{}{
		"format":      format,
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"summary":     fmt.Sprintf("report exported as %s", format),
	}, nil
}
