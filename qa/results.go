package qa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TriState is the reviewer verdict for a single manual criterion.
type TriState int

const (
	Unset TriState = iota
	Pass
	Fail
)

func (s TriState) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unset"
	}
}

func (s TriState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts "unset"/"pass"/"fail" as well as the booleans and
// null the console forms send.
func (s *TriState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`, `"unset"`:
		*s = Unset
	case "true", `"pass"`:
		*s = Pass
	case "false", `"fail"`:
		*s = Fail
	default:
		return fmt.Errorf("invalid manual check value %s", string(data))
	}
	return nil
}

// ManualChecklist holds the human-only QA-03 criteria.
type ManualChecklist struct {
	NoAutoplay    TriState `json:"noAutoplay"`
	NoWhiteScreen TriState `json:"noWhiteScreen"`
	GestureOk     TriState `json:"gestureOk"`
}

// Criteria returns the checklist in a stable order.
func (m ManualChecklist) Criteria() []Criterion {
	return []Criterion{
		{Name: "noAutoplay", Value: m.NoAutoplay},
		{Name: "noWhiteScreen", Value: m.NoWhiteScreen},
		{Name: "gestureOk", Value: m.GestureOk},
	}
}

type Criterion struct {
	Name  string
	Value TriState
}

// HandshakeResult is QA-01.
type HandshakeResult struct {
	InitToReadyMs    int64   `json:"initToReadyMs"`
	QuitToCompleteMs int64   `json:"quitToCompleteMs"`
	Pass             bool    `json:"pass"`
	Events           []Event `json:"events"`
	Error            string  `json:"error,omitempty"`
}

// FormatResult is QA-02.
type FormatResult struct {
	Pass             bool             `json:"pass"`
	Accuracy         float64          `json:"accuracy"`
	Completion       float64          `json:"completion"`
	NormalizedResult NormalizedResult `json:"normalizedResult"`
	ValidationErrors []string         `json:"validationErrors"`
	Error            string           `json:"error,omitempty"`
}

type AssetAuto struct {
	AssetError bool   `json:"assetError"`
	ReadyMs    int64  `json:"readyMs"`
	Error      string `json:"error,omitempty"`
}

// AssetResult is QA-03.
type AssetResult struct {
	Auto   AssetAuto       `json:"auto"`
	Manual ManualChecklist `json:"manual"`
}

// IdempotencyResult is QA-04.
type IdempotencyResult struct {
	Pass               bool   `json:"pass"`
	DuplicateAttemptID bool   `json:"duplicateAttemptId"`
	BackendRecordCount int64  `json:"backendRecordCount"`
	ConsistencyCheck   bool   `json:"consistencyCheck"`
	Details            string `json:"details,omitempty"`
}

// TestResults is the evidence bundle of one automated QA run.
type TestResults struct {
	SessionID    string            `json:"sessionId"`
	QA01         HandshakeResult   `json:"qa01"`
	QA02         FormatResult      `json:"qa02"`
	QA03         AssetResult       `json:"qa03"`
	QA04         IdempotencyResult `json:"qa04"`
	StartedAt    time.Time         `json:"startedAt"`
	CompletedAt  time.Time         `json:"completedAt"`
	TestDuration int64             `json:"testDurationMs"`
}

// Passed reports whether every automated sub-test passed.
func (r TestResults) Passed() bool {
	return r.QA01.Pass && r.QA02.Pass && !r.QA03.Auto.AssetError && r.QA04.Pass
}
