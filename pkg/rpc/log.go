package rpc

import (
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
)

// LogRequest logs information about a received request.
func LogRequest(log logrus.FieldLogger, op, reqID, clientAddr string) {
	log.WithFields(logrus.Fields{
		"op":         op,
		"request_id": reqID,
		"client":     clientAddr,
	}).Debug("request")
}

// LogResponse logs the outcome of a request.
func LogResponse(log logrus.FieldLogger, op, reqID string, code codes.Code, duration time.Duration) {
	log.WithFields(logrus.Fields{
		"op":         op,
		"request_id": reqID,
		"status":     code.String(),
		"duration":   duration,
	}).Info("response")
}

// LogError logs an error with its context. Errors that map to a filesystem
// reason are expected outcomes and logged at Debug.
func LogError(log logrus.FieldLogger, op, reqID string, err error) {
	entry := log.WithFields(logrus.Fields{
		"op":         op,
		"request_id": reqID,
	}).WithError(err)
	if HasReason(err) {
		entry.Debug("request failed")
		return
	}
	entry.Warn("request failed")
}
