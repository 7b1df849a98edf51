package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const executionPrefix = "gen-"

// NewExecutionID derives the execution handle from the user and submission
// time. With a client idempotency key the id is stable for that key instead.
func NewExecutionID(userID uuid.UUID, at time.Time, clientKey string) string {
	base := executionPrefix + userID.String() + "-"
	if k := strings.TrimSpace(clientKey); k != "" {
		sum := sha256.Sum256([]byte(k))
		return base + "k" + hex.EncodeToString(sum[:])[:20]
	}
	return base + strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

// ExecutionOwner returns the user embedded in an execution id.
func ExecutionOwner(executionID string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(executionID, executionPrefix)
	if !ok || len(rest) < 37 || rest[36] != '-' {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest[:36])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ParseRequestedCount accepts only a bare JSON integer.
func ParseRequestedCount(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("requested_count is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("requested_count must be an integer, got %s", s)
	}
	return n, nil
}
