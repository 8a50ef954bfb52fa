package core

// TelemetryReading is one submission from one device at one point in time
type TelemetryReading struct {
	DeviceID       string  `json:"deviceId"`
	RackID         string  `json:"rackId"`
	Timestamp      int64   `json:"timestamp"` // unix seconds, producer-supplied
	MetricType     string  `json:"metricType"`
	Value          float64 `json:"value"`
	Payload        string  `json:"payload,omitempty"` // structured JSON payload for FAULT/LINK_STATUS/CUSTOM
	SequenceNumber uint64  `json:"sequenceNumber"`
}

// RackHealthSummary is the derived per-rack health view, one per rack per aggregation cycle
type RackHealthSummary struct {
	RackID            string           `json:"rackId"`
	CycleTimestamp    int64            `json:"cycleTimestamp"`
	DeviceCount       int              `json:"deviceCount"`
	HealthyCount      int              `json:"healthyCount"`
	FaultedDeviceIDs  []string         `json:"faultedDeviceIds"`
	LinkDownDeviceIDs []string         `json:"linkDownDeviceIds,omitempty"`
	MaxTemperature    float64          `json:"maxTemperature"`
	LastHeartbeatAge  map[string]int64 `json:"lastHeartbeatAge"` // deviceId -> seconds since last heartbeat
}

// AbnormalityEvent is one detected issue, immutable after creation
type AbnormalityEvent struct {
	EventID              string `json:"eventId"`
	RackID               string `json:"rackId"`
	DeviceID             string `json:"deviceId,omitempty"`
	Kind                 string `json:"kind"`
	Severity             string `json:"severity"`
	DetectedAt           int64  `json:"detectedAt"`
	SourceCycleTimestamp int64  `json:"sourceCycleTimestamp"`
}

// SchedulerLease is the coordination record granting one instance exclusive cycle execution
type SchedulerLease struct {
	LockName   string `json:"lockName"`
	HolderID   string `json:"holderId"`
	AcquiredAt int64  `json:"acquiredAt"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// OpenCondition tracks a currently open abnormality so unchanged conditions do not re-trigger each cycle
type OpenCondition struct {
	RackID         string `json:"rackId"`
	DeviceID       string `json:"deviceId"`
	Kind           string `json:"kind"`
	Severity       string `json:"severity"`
	OpenedAt       int64  `json:"openedAt"`
	LastNotifiedAt int64  `json:"lastNotifiedAt"`
}

// EventDelivery holds the delivery outcome for a single published event
type EventDelivery struct {
	EventID  string `json:"eventId"`
	Delivery string `json:"delivery"` // delivered | failed | shortCircuited
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// PublishResult reports the per-event delivery outcome of one publish call
type PublishResult struct {
	Delivered []EventDelivery `json:"delivered"`
	Failed    []EventDelivery `json:"failed"`
}

// FailedPublish records an event that exhausted all delivery attempts, kept for operator visibility
type FailedPublish struct {
	Event     AbnormalityEvent `json:"event"`
	FailedAt  int64            `json:"failedAt"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"lastError"`
}
