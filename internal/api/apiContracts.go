package api

type JobOutgoingError struct {
	Code    int    `json:"code" example:"400"`
	Message string `json:"message" example:"Batch not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type ErrorResponse struct {
	Id    string           `json:"id,omitempty"`
	Error JobOutgoingError `json:"error"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	StatusURL string `json:"status_url"`
}

type FileStatusResponse struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	PatientName string `json:"patient_name"`
}

type StatusResponse struct {
	JobId      string               `json:"job_id"`
	Total      int                  `json:"total"`
	Completed  int                  `json:"completed"`
	Failed     int                  `json:"failed"`
	InProgress int                  `json:"in_progress"`
	Status     string               `json:"status"`
	Files      []FileStatusResponse `json:"files"`
	Usage      UsageResponse        `json:"usage"`
}

// UsageResponse totals the remote extraction calls recorded for a batch.
type UsageResponse struct {
	RemoteCalls  int     `json:"remote_calls"`
	FailedCalls  int     `json:"failed_calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
