package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Minute

// ExecAnalyzer invokes an external attribution command with the log path
// appended as the last argument. The command writes a single JSON result
// object to stdout. This keeps the service decoupled from any particular
// model transport.
type ExecAnalyzer struct {
	command []string
	timeout time.Duration
}

func NewExecAnalyzer(command []string, timeout time.Duration) *ExecAnalyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecAnalyzer{command: command, timeout: timeout}
}

func (a *ExecAnalyzer) Analyze(ctx context.Context, path string) (*Result, error) {
	if len(a.command) == 0 {
		return nil, NewErrAnalysisFailed(path, errors.New("no analyzer command configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := append(append([]string{}, a.command[1:]...), path)
	cmd := exec.CommandContext(ctx, a.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, NewErrAnalysisTimeout(path)
	}
	if err != nil {
		zap.S().Named("analyzer").Errorw("analyzer command failed",
			"path", path, "error", err, "stderr", stderr.String())
		return nil, NewErrAnalysisFailed(path, err)
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, NewErrAnalysisFailed(path, err)
	}
	if result.ResultID == "" {
		result.ResultID = uuid.NewString()
	}

	zap.S().Named("analyzer").Infow("analysis completed",
		"path", path, "module", result.Module, "state", result.State,
		"duration", time.Since(start))
	return &result, nil
}
