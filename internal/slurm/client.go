package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueryTimeout = 30 * time.Second
	squeueFormat        = "%i|%j|%u|%P|%T"
)

// terminalStates is the set of sacct/squeue states after which a job's
// output log is final. sacct may suffix CANCELLED with "by <uid>", so
// states are matched on their leading token.
var terminalStates = map[string]bool{
	"COMPLETED":     true,
	"FAILED":        true,
	"CANCELLED":     true,
	"TIMEOUT":       true,
	"NODE_FAIL":     true,
	"OUT_OF_MEMORY": true,
	"PREEMPTED":     true,
}

// IsTerminalState reports whether a scheduler-reported state is final.
func IsTerminalState(state string) bool {
	s, _, _ := strings.Cut(strings.TrimSpace(state), " ")
	return terminalStates[s]
}

// JobRow is one job as reported by squeue.
type JobRow struct {
	ID        string
	Name      string
	User      string
	Partition string
	State     string
}

// Client queries the Slurm controller. Implementations shell out to the
// Slurm CLI; the interface exists so the tracker can be tested against a
// fake scheduler.
type Client interface {
	// Queue lists jobs in the configured partitions, in any state squeue
	// still knows about.
	Queue(ctx context.Context) ([]JobRow, error)
	// States resolves the current state of jobs that have already left
	// the queue, via accounting (sacct). Jobs unknown to accounting are
	// absent from the returned map.
	States(ctx context.Context, ids []string) (map[string]string, error)
	// OutputPath resolves the stdout log path of a job via scontrol.
	OutputPath(ctx context.Context, id string) (string, error)
}

type ErrSchedulerUnavailable struct {
	error
}

func NewErrSchedulerUnavailable(cmd string, err error) *ErrSchedulerUnavailable {
	return &ErrSchedulerUnavailable{fmt.Errorf("%s: %w", cmd, err)}
}

type ErrOutputPathUnresolved struct {
	error
}

func NewErrOutputPathUnresolved(id string, reason string) *ErrOutputPathUnresolved {
	return &ErrOutputPathUnresolved{fmt.Errorf("no output path for job %s: %s", id, reason)}
}

// CLIClient talks to Slurm through squeue, sacct and scontrol.
type CLIClient struct {
	partitions  []string
	user        string
	namePattern string
	timeout     time.Duration

	// run is swapped out in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

type CLIOption func(*CLIClient)

func WithPartitions(partitions []string) CLIOption {
	return func(c *CLIClient) {
		c.partitions = partitions
	}
}

func WithUser(user string) CLIOption {
	return func(c *CLIClient) {
		c.user = user
	}
}

// WithNamePattern restricts Queue to jobs whose name contains the pattern.
func WithNamePattern(pattern string) CLIOption {
	return func(c *CLIClient) {
		c.namePattern = pattern
	}
}

func WithQueryTimeout(timeout time.Duration) CLIOption {
	return func(c *CLIClient) {
		c.timeout = timeout
	}
}

func NewCLIClient(opts ...CLIOption) *CLIClient {
	c := &CLIClient{
		timeout: defaultQueryTimeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *CLIClient) Queue(ctx context.Context) ([]JobRow, error) {
	args := []string{"-h", "-o", squeueFormat, "--states=all"}
	if len(c.partitions) > 0 {
		args = append(args, "-p", strings.Join(c.partitions, ","))
	}
	if c.user != "" {
		args = append(args, "-u", c.user)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, "squeue", args...)
	if err != nil {
		return nil, NewErrSchedulerUnavailable("squeue", err)
	}

	rows := parseQueueOutput(string(out))
	if c.namePattern == "" {
		return rows, nil
	}
	filtered := rows[:0]
	for _, r := range rows {
		if strings.Contains(r.Name, c.namePattern) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (c *CLIClient) States(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"-n", "-P", "-X", "-o", "JobID,State", "-j", strings.Join(ids, ",")}
	out, err := c.run(ctx, "sacct", args...)
	if err != nil {
		return nil, NewErrSchedulerUnavailable("sacct", err)
	}
	return parseStatesOutput(string(out)), nil
}

func (c *CLIClient) OutputPath(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, "scontrol", "show", "job", id)
	if err != nil {
		return "", NewErrSchedulerUnavailable("scontrol", err)
	}

	path, ok := parseOutputPath(string(out))
	if !ok {
		return "", NewErrOutputPathUnresolved(id, "no StdOut field in scontrol output")
	}
	// A path with unexpanded filename patterns cannot be opened; treat it
	// like a missing path so the caller retries and eventually gives up.
	if strings.ContainsRune(path, '%') {
		zap.S().Named("slurm").Warnf("job %s stdout path contains unexpanded pattern: %s", id, path)
		return "", NewErrOutputPathUnresolved(id, "stdout path contains unexpanded pattern")
	}
	return path, nil
}

func parseQueueOutput(out string) []JobRow {
	var rows []JobRow
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			zap.S().Named("slurm").Debugf("skipping unparsable squeue line: %q", line)
			continue
		}
		rows = append(rows, JobRow{
			ID:        fields[0],
			Name:      fields[1],
			User:      fields[2],
			Partition: fields[3],
			State:     fields[4],
		})
	}
	return rows
}

func parseStatesOutput(out string) map[string]string {
	states := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, state, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		states[id] = state
	}
	return states
}

func parseOutputPath(out string) (string, bool) {
	for _, field := range strings.Fields(out) {
		if v, ok := strings.CutPrefix(field, "StdOut="); ok {
			return v, v != ""
		}
	}
	return "", false
}
