package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// StructuredLogger provides structured logging with consistent fields
type StructuredLogger struct {
	logger  logr.Logger
	metrics *Metrics
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger logr.Logger, metrics *Metrics) *StructuredLogger {
	return &StructuredLogger{
		logger:  logger,
		metrics: metrics,
	}
}

// OperationContext holds context information for a lifecycle operation
type OperationContext struct {
	OperationID   string
	OperationType string
	InterfaceID   string
	InterfaceName string
	DeviceNumber  int
	Address       string
	InstanceID    string
	StartTime     time.Time
	Metadata      map[string]interface{}
}

// NewOperationContext creates a new operation context
func NewOperationContext(operationType string) *OperationContext {
	return &OperationContext{
		OperationID:   generateOperationID(),
		OperationType: operationType,
		DeviceNumber:  -1,
		StartTime:     time.Now(),
		Metadata:      make(map[string]interface{}),
	}
}

// WithInterface adds the ENI id to the context
func (oc *OperationContext) WithInterface(interfaceID string) *OperationContext {
	oc.InterfaceID = interfaceID
	return oc
}

// WithDevice adds the local interface name and device index to the context
func (oc *OperationContext) WithDevice(name string, deviceNumber int) *OperationContext {
	oc.InterfaceName = name
	oc.DeviceNumber = deviceNumber
	return oc
}

// WithAddress adds an IP address or allocation id to the context
func (oc *OperationContext) WithAddress(address string) *OperationContext {
	oc.Address = address
	return oc
}

// WithInstance adds the EC2 instance id to the context
func (oc *OperationContext) WithInstance(instanceID string) *OperationContext {
	oc.InstanceID = instanceID
	return oc
}

// WithMetadata adds metadata to the context
func (oc *OperationContext) WithMetadata(key string, value interface{}) *OperationContext {
	oc.Metadata[key] = value
	return oc
}

// Duration returns the elapsed time since the operation started
func (oc *OperationContext) Duration() time.Duration {
	return time.Since(oc.StartTime)
}

// LogFields returns structured log fields for this context
func (oc *OperationContext) LogFields() []interface{} {
	fields := []interface{}{
		"operationID", oc.OperationID,
		"operationType", oc.OperationType,
		"duration", oc.Duration(),
	}

	if oc.InterfaceID != "" {
		fields = append(fields, "eniID", oc.InterfaceID)
	}
	if oc.InterfaceName != "" {
		fields = append(fields, "interface", oc.InterfaceName)
	}
	if oc.DeviceNumber >= 0 {
		fields = append(fields, "deviceNumber", oc.DeviceNumber)
	}
	if oc.Address != "" {
		fields = append(fields, "address", oc.Address)
	}
	if oc.InstanceID != "" {
		fields = append(fields, "instanceID", oc.InstanceID)
	}

	// Add metadata fields
	for key, value := range oc.Metadata {
		fields = append(fields, key, value)
	}

	return fields
}

// LogOperationStart logs the start of an operation
func (sl *StructuredLogger) LogOperationStart(ctx context.Context, opCtx *OperationContext, message string) {
	fields := opCtx.LogFields()
	sl.logger.Info(message, fields...)
}

// LogOperationSuccess logs successful completion of an operation
func (sl *StructuredLogger) LogOperationSuccess(ctx context.Context, opCtx *OperationContext, message string) {
	fields := opCtx.LogFields()
	sl.logger.Info(message, fields...)

	// Record metrics
	if sl.metrics != nil {
		sl.metrics.RecordOperation(opCtx.OperationType, "success", opCtx.Duration())
	}
}

// LogOperationError logs an error during an operation
func (sl *StructuredLogger) LogOperationError(ctx context.Context, opCtx *OperationContext, err error, message string) {
	fields := append(opCtx.LogFields(), "error", err.Error())
	sl.logger.Error(err, message, fields...)

	// Record metrics
	if sl.metrics != nil {
		sl.metrics.RecordOperation(opCtx.OperationType, "error", opCtx.Duration())
		sl.metrics.RecordOperationError(opCtx.OperationType, CategorizeError(err))
	}
}

// LogOperationWarning logs a warning during an operation
func (sl *StructuredLogger) LogOperationWarning(ctx context.Context, opCtx *OperationContext, message string) {
	fields := opCtx.LogFields()
	sl.logger.Info(fmt.Sprintf("WARNING: %s", message), fields...)
}

// LogAWSAPICall logs an AWS API call with timing
func (sl *StructuredLogger) LogAWSAPICall(ctx context.Context, service, operation string, duration time.Duration, err error) {
	fields := []interface{}{
		"service", service,
		"operation", operation,
		"duration", duration,
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		sl.logger.Error(err, "AWS API call failed", fields...)

		if sl.metrics != nil {
			sl.metrics.RecordAWSAPIError(service, operation, CategorizeError(err))
			sl.metrics.RecordAWSAPICall(service, operation, "error", duration)
		}
	} else {
		sl.logger.V(1).Info("AWS API call succeeded", fields...)

		if sl.metrics != nil {
			sl.metrics.RecordAWSAPICall(service, operation, "success", duration)
		}
	}
}

// LogConvergenceWait logs the outcome of a wait for a resource to reach
// its expected state
func (sl *StructuredLogger) LogConvergenceWait(ctx context.Context, condition string, duration time.Duration, err error) {
	fields := []interface{}{
		"condition", condition,
		"duration", duration,
	}

	outcome := "success"
	if err != nil {
		outcome = "timeout"
		fields = append(fields, "error", err.Error())
		sl.logger.Error(err, "Wait for convergence failed", fields...)
	} else {
		sl.logger.V(1).Info("Resource converged", fields...)
	}

	if sl.metrics != nil {
		sl.metrics.RecordConvergenceWait(condition, outcome, duration)
	}
}

// LogProtectedInterface logs an interface that cleanup refused to delete
func (sl *StructuredLogger) LogProtectedInterface(ctx context.Context, interfaceID, reason string) {
	fields := []interface{}{
		"eniID", interfaceID,
		"reason", reason,
	}

	sl.logger.Info("Skipping protected interface", fields...)

	if sl.metrics != nil {
		sl.metrics.RecordProtectedInterface(reason)
	}
}

// LogCleanedInterface logs an interface deleted by cleanup
func (sl *StructuredLogger) LogCleanedInterface(ctx context.Context, interfaceID string) {
	sl.logger.Info("Deleted interface", "eniID", interfaceID)

	if sl.metrics != nil {
		sl.metrics.RecordCleanedInterface()
	}
}

// Helper functions

// generateOperationID generates a unique operation ID
func generateOperationID() string {
	return fmt.Sprintf("op-%d", time.Now().UnixNano())
}

// CategorizeError maps an error to a stable label for metrics. Errors
// carrying a domain kind use it directly; everything else falls back to
// message inspection.
func CategorizeError(err error) string {
	if err == nil {
		return "none"
	}

	if kind := errors.KindOf(err); kind != errors.KindUnknown {
		return strings.ToLower(string(kind))
	}

	errMsg := strings.ToLower(err.Error())

	if containsAny(errMsg, "throttling", "rate limit", "requestlimitexceeded") {
		return "throttling"
	}
	if containsAny(errMsg, "access denied", "unauthorized", "forbidden") {
		return "authorization"
	}
	if containsAny(errMsg, "not found", "does not exist") {
		return "not_found"
	}
	if containsAny(errMsg, "timeout", "connection") {
		return "network"
	}
	if containsAny(errMsg, "invalid", "malformed", "bad request") {
		return "validation"
	}

	return "unknown"
}

// containsAny checks if any of the substrings are contained in the main string
func containsAny(str string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(str, substr) {
			return true
		}
	}
	return false
}
