package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is the opaque payload produced by one log analysis. The fields
// mirror what the attribution model emits; the service never interprets
// them beyond serialization.
type Result struct {
	ResultID    string   `json:"result_id"`
	Module      string   `json:"module"`
	State       string   `json:"state"`
	Attribution []string `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (r *Result) Marshal() (string, error) {
	d, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(d), nil
}

func Unmarshal(data string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Analyzer runs failure attribution over a single log file. It may block
// for a long time and must honor context cancellation; a timeout is a
// plain failure to the caller.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*Result, error)
}

type ErrAnalysisFailed struct {
	error
}

func NewErrAnalysisFailed(path string, err error) *ErrAnalysisFailed {
	return &ErrAnalysisFailed{fmt.Errorf("analysis of %s failed: %w", path, err)}
}

type ErrAnalysisTimeout struct {
	error
}

func NewErrAnalysisTimeout(path string) *ErrAnalysisTimeout {
	return &ErrAnalysisTimeout{fmt.Errorf("analysis of %s timed out", path)}
}
