package events

// JobEvent is the payload published on every job state transition.
type JobEvent struct {
	JobID       string `json:"job_id"`
	RequesterID string `json:"requester_id"`
	FromStatus  string `json:"from_status"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
	ResultRef   string `json:"result_ref,omitempty"`
}
