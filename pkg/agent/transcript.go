package model

import "time"

// Transcript is the text recognized from an audio clip.
type Transcript struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"isFinal"`
	Timestamp  int64   `json:"timestamp"`
}

func NewTranscript(text string, confidence float64) *Transcript {
	return &Transcript{
		Transcript: text,
		Confidence: confidence,
		IsFinal:    true,
		Timestamp:  time.Now().UnixMilli(),
	}
}
