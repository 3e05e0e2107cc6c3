package worker

// ResourceIndexTask asks a worker to (re)index one resource.
type ResourceIndexTask struct {
	ResourceID    string `json:"resourceId"`
	CorrelationID string `json:"correlationId,omitempty"`
}
