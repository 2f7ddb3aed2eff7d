package models

// Recording is one server run whose frames were saved.
type Recording struct {
	ID        string `json:"id"`
	StartedAt int64  `json:"startedAt"`
}

// Frame is a recorded full frame. Data is omitted from listings.
type Frame struct {
	RecordingID string `json:"recordingID"`
	FrameID     uint32 `json:"frameID"`
	Timestamp   int64  `json:"timestamp"`
	Bits        int    `json:"bits"`
	ScopeCount  int    `json:"scopeCount"`
	Data        []byte `json:"-"`
}
