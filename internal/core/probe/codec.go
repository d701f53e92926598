package probe

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/dispatchkeeper/internal/types"
)

// debugEnvelope is the Debug request document.
type debugEnvelope struct {
	Request types.DebugRequest `json:"request"`
	Start   time.Time          `json:"start"`
	End     time.Time          `json:"end"`
}

// reportEnvelope is the ReportAlerts request document.
type reportEnvelope struct {
	Alerts []types.Alert `json:"alerts"`
}

// Report statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// ReportResult is the outcome of one reported alert.
type ReportResult struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// reportResponse is the ReportAlerts response document.
type reportResponse struct {
	Accepted int            `json:"accepted"`
	Results  []ReportResult `json:"results"`
}

// encode converts a JSON-tagged value into a Struct.
func encode(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return s, nil
}

// decode fills v from a Struct. Numbers pass through float64, which holds
// every id and count the service exchanges exactly.
func decode(s *structpb.Struct, v interface{}) error {
	if s == nil {
		return fmt.Errorf("empty message")
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to marshal struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	return nil
}
