package slurm

import (
	"fmt"
	"regexp"
	"strings"
)

// JobIDKind classifies the textual shape of a Slurm job identifier.
type JobIDKind string

const (
	// JobIDPlain is a bare numeric job ID, e.g. "12345".
	JobIDPlain JobIDKind = "plain"
	// JobIDArrayTask is one indexed task of an array job, e.g. "12345_7".
	JobIDArrayTask JobIDKind = "array_task"
	// JobIDArraySummary denotes a whole set of array tasks in bracket
	// notation, e.g. "12345[0-10]". Summaries are never individually
	// actionable: each task shows up under its own array-task ID.
	JobIDArraySummary JobIDKind = "array_summary"
	// JobIDHetComponent is one component of a heterogeneous job,
	// e.g. "12345+1". Output metadata lives on the base job.
	JobIDHetComponent JobIDKind = "het_component"
)

var (
	plainRe        = regexp.MustCompile(`^\d+$`)
	arrayTaskRe    = regexp.MustCompile(`^\d+_\d+$`)
	arraySummaryRe = regexp.MustCompile(`^(\d+)\[[^\]]+\]$`)
	hetComponentRe = regexp.MustCompile(`^(\d+)\+\d+$`)
)

// JobID is a classified Slurm job identifier.
type JobID struct {
	// Raw is the identifier exactly as reported by the scheduler.
	Raw string
	Kind JobIDKind
	// Base is the identifier to use for scheduler metadata lookups.
	// For het components this is the leading integer; scontrol associates
	// the output path with the parent job, not the component.
	Base string
}

// Actionable reports whether the job can be individually submitted.
func (j JobID) Actionable() bool {
	return j.Kind != JobIDArraySummary
}

type ErrMalformedJobID struct {
	error
}

func NewErrMalformedJobID(raw string) *ErrMalformedJobID {
	return &ErrMalformedJobID{fmt.Errorf("malformed job id %q", raw)}
}

// ParseJobID classifies a raw scheduler job identifier. IDs matching none
// of the known shapes are a classification error, never silently treated
// as plain, so callers can log and drop them instead of mis-routing
// scheduler queries.
func ParseJobID(raw string) (JobID, error) {
	id := strings.TrimSpace(raw)
	switch {
	case plainRe.MatchString(id):
		return JobID{Raw: id, Kind: JobIDPlain, Base: id}, nil
	case arrayTaskRe.MatchString(id):
		return JobID{Raw: id, Kind: JobIDArrayTask, Base: id}, nil
	case arraySummaryRe.MatchString(id):
		base := arraySummaryRe.FindStringSubmatch(id)[1]
		return JobID{Raw: id, Kind: JobIDArraySummary, Base: base}, nil
	case hetComponentRe.MatchString(id):
		base := hetComponentRe.FindStringSubmatch(id)[1]
		return JobID{Raw: id, Kind: JobIDHetComponent, Base: base}, nil
	default:
		return JobID{}, NewErrMalformedJobID(raw)
	}
}
