package utils

import (
	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GenerateConnectionID generates a unique realtime connection ID
func GenerateConnectionID() string {
	return "conn_" + uuid.NewString()
}

// GenerateInstanceID identifies this server process on the shared broker
func GenerateInstanceID() string {
	return "inst_" + uuid.NewString()
}
