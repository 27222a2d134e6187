package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixRequest   = "req_"
	PrefixExecution = "exec_"
)

// NewRequest generates a new access request ID with req_ prefix
func NewRequest() string {
	return PrefixRequest + uuid.New().String()
}

// NewExecution generates a new execution ID with exec_ prefix
func NewExecution() string {
	return PrefixExecution + uuid.New().String()
}
