package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAnalysisPass       = "AnalysisPass"
	MetricAnalysisLatency    = "AnalysisLatency"
	MetricPredictionsEmitted = "PredictionsEmitted"
	MetricInsightsEmitted    = "InsightsEmitted"
	MetricSamplesDropped     = "SamplesDropped"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimCadence    = "Cadence"
	DimSensorKind = "SensorKind"
	DimReason     = "Reason"
	DimProvider   = "Provider"

	// Metric Namespace
	MetricNamespace = "SensorPulse"
)
