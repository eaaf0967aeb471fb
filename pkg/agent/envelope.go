package model

import "time"

// Envelope is the uniform response shape of every boundary operation.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewSuccessEnvelope(data any) Envelope {
	return Envelope{Success: true, Data: data, Timestamp: time.Now().UnixMilli()}
}

func NewErrorEnvelope(err string) Envelope {
	return Envelope{Success: false, Error: err, Timestamp: time.Now().UnixMilli()}
}
