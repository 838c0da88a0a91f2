package adapter

import (
	"fmt"

	"github.com/akolanti/MedExtract/internal/api"
	"github.com/akolanti/MedExtract/internal/job"
)

func ToInitJobResponse(id string) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        id,
		StatusURL: fmt.Sprintf("/status/%s", id),
	}
}

func ToStatusResponse(report job.StatusReport) api.StatusResponse {
	files := make([]api.FileStatusResponse, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, api.FileStatusResponse{
			Filename:    f.Filename,
			Status:      string(f.Status),
			PatientName: f.PatientName,
		})
	}
	return api.StatusResponse{
		JobId:      report.JobId,
		Total:      report.Total,
		Completed:  report.Completed,
		Failed:     report.Failed,
		InProgress: report.InProgress,
		Status:     string(report.Status),
		Files:      files,
		Usage: api.UsageResponse{
			RemoteCalls:  report.Usage.Calls,
			FailedCalls:  report.Usage.Failed,
			InputTokens:  report.Usage.InputTokens,
			OutputTokens: report.Usage.OutputTokens,
			CostUSD:      report.Usage.CostUSD,
		},
	}
}

// BadRequest wraps an error message. Only throttling and server errors are worth a retry.
func BadRequest(id string, message string, code int) api.ErrorResponse {
	return api.ErrorResponse{
		Id: id,
		Error: api.JobOutgoingError{
			Code:    code,
			Message: message,
			Retry:   code == 429 || code >= 500,
		},
	}
}
