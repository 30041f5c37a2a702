package worker

import "time"

// IndexRebuildPayload asks a worker to rebuild the index from the
// configured corpus directory.
type IndexRebuildPayload struct {
	CorrelationID string    `json:"correlation_id"`
	RequestedAt   time.Time `json:"requested_at"`
}

// IndexBuiltPayload announces a persisted snapshot so serving processes
// reload it.
type IndexBuiltPayload struct {
	CorrelationID string `json:"correlation_id"`
	Chunks        int    `json:"chunks"`
	Dimension     int    `json:"dimension"`
	Model         string `json:"model"`
	Generation    string `json:"generation"`
}
