package core

// Metric types accepted on ingestion
const (
	MetricTemperature = "TEMPERATURE"
	MetricFault       = "FAULT"
	MetricHeartbeat   = "HEARTBEAT"
	MetricLinkStatus  = "LINK_STATUS"
	MetricCustom      = "CUSTOM"
)

// Abnormality event kinds
const (
	KindOverTemp           = "OVER_TEMP"
	KindDeviceUnresponsive = "DEVICE_UNRESPONSIVE"
	KindFaultReported      = "FAULT_REPORTED"
	KindLinkDown           = "LINK_DOWN"
)

// Abnormality severities
const (
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// Delivery outcomes reported by the publisher
const (
	DeliveryDelivered      = "delivered"
	DeliveryFailed         = "failed"
	DeliveryShortCircuited = "shortCircuited"
)

// IsValidMetricType returns true if the provided value is a recognized metric type
func IsValidMetricType(metricType string) bool {
	switch metricType {
	case MetricTemperature, MetricFault, MetricHeartbeat, MetricLinkStatus, MetricCustom:
		return true
	}

	return false
}
