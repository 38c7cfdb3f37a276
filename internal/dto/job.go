package dto

// CreateJobRequest submits a new background job.
type CreateJobRequest struct {
	Type     string                 `json:"type" validate:"required"`
	Payload  map[string]interface{} `json:"payload"`
	Owner    string                 `json:"owner"`
	Priority int                    `json:"priority" validate:"omitempty,min=1,max=10"`
}

// ListJobsQuery filters job listings.
type ListJobsQuery struct {
	Owner     string `form:"owner"`
	Type      string `form:"type"`
	State     string `form:"state"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortOrder string `form:"sort_order"`
}

// RetryJobResponse reports the refreshed state after a retry request.
type RetryJobResponse struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}
