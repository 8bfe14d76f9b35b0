package engine

import "fmt"

// BuildPayload builds the callback body for raw. A nil err reports success.
// The physical id falls back to the request's existing physical id and then
// to the log stream name, so the orchestrator never receives an empty one.
func BuildPayload(raw RawEvent, outcome *Outcome, err error, logStream string) *ResponsePayload {
	payload := &ResponsePayload{
		Status:            ResponseSuccess,
		Reason:            fmt.Sprintf("See the details in CloudWatch Log Stream: %s", logStream),
		StackID:           raw.StackID,
		RequestID:         raw.RequestID,
		LogicalResourceID: raw.LogicalResourceID,
		Data:              map[string]interface{}{},
	}

	if err != nil {
		payload.Status = ResponseFailed
		if msg := err.Error(); msg != "" {
			payload.Reason = msg
		}
	}

	if outcome != nil && err == nil {
		payload.PhysicalResourceID = outcome.PhysicalID
		for k, v := range outcome.Data {
			payload.Data[k] = v
		}
	}
	if payload.PhysicalResourceID == "" {
		payload.PhysicalResourceID = raw.PhysicalResourceID
	}
	if payload.PhysicalResourceID == "" {
		payload.PhysicalResourceID = logStream
	}
	return payload
}
