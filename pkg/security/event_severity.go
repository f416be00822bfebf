package security

import "go.uber.org/zap/zapcore"

// Severity represents the severity level of a security event
// This is derived from EventType, NOT user-provided
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityMEDIUM   Severity = "MEDIUM"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

// Events outside the auth flow
const (
	EventCSRFViolation   EventType = "csrf_violation"
	EventDataExport      EventType = "data_export"
	EventUploadRejected  EventType = "upload_rejected"
	EventMalwareDetected EventType = "malware_detected"
)

// EventSeverityMap defines the hard-coded severity for each event type
var EventSeverityMap = map[EventType]Severity{
	// INFO - Normal operations
	EventSignInSuccess:       SeverityINFO,
	EventSignUp:              SeverityINFO,
	EventSessionRefreshed:    SeverityINFO,
	EventPasswordResetIssued: SeverityINFO,

	// MEDIUM - Notable but not urgent
	EventDataExport:     SeverityMEDIUM,
	EventUploadRejected: SeverityMEDIUM,
	EventSignUpFailed:   SeverityMEDIUM,

	// WARN - Potential issues, monitor
	EventSignInFailed:       SeverityWARN,
	EventUnconfirmedSignOut: SeverityWARN,
	EventRateLimitTriggered: SeverityWARN,

	// HIGH - Active threats
	EventSignInBlocked:      SeverityHIGH,
	EventUnauthorizedAccess: SeverityHIGH,
	EventAdminAccessDenied:  SeverityHIGH,
	EventCSRFViolation:      SeverityHIGH,

	// CRITICAL - Immediate attention required
	EventMalwareDetected: SeverityCRITICAL,
}

// GetSeverity returns the severity for an event type
// If the event type is not mapped, defaults to MEDIUM
func GetSeverity(eventType EventType) Severity {
	if severity, ok := EventSeverityMap[eventType]; ok {
		return severity
	}
	return SeverityMEDIUM
}

// IsHighOrAbove returns true if the event is HIGH or CRITICAL severity
func IsHighOrAbove(eventType EventType) bool {
	severity := GetSeverity(eventType)
	return severity == SeverityHIGH || severity == SeverityCRITICAL
}

// zapLevel is the log level an event of this severity is written at.
func (s Severity) zapLevel() zapcore.Level {
	switch s {
	case SeverityINFO:
		return zapcore.InfoLevel
	case SeverityMEDIUM, SeverityWARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
