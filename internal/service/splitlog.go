package service

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// Splitlog jobs print the directory holding their per-cycle log files
// near the top of the Slurm output. Only the head of the file is scanned;
// the marker is emitted by the launcher before any workload output.
const logsDirScanLimit = 64 * 1024

var logsDirRe = regexp.MustCompile(`LOGS_DIR:\s*(\S+)`)

// detectLogsDir scans the head of a Slurm output file for the LOGS_DIR
// marker. The referenced directory must itself resolve under the allowed
// root, otherwise the job falls back to single-file mode.
func (s *AttributionService) detectLogsDir(resolvedLogPath string) (string, bool) {
	f, err := os.Open(resolvedLogPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(io.LimitReader(f, logsDirScanLimit))
	for scanner.Scan() {
		m := logsDirRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		dir, err := s.resolveUnderRoot(m[1])
		if err != nil {
			return "", false
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return "", false
		}
		return dir, true
	}
	return "", false
}

// resolveSplitlogFile picks the per-cycle file to analyze: the named file
// under the job's logs directory, or the most recently modified one when
// no name is given. Only the base name of the request is honored, so a
// caller cannot traverse out of the logs directory.
func (s *AttributionService) resolveSplitlogFile(job *TrackedJob, file string) (string, error) {
	if file != "" {
		candidate := filepath.Join(job.LogsDir, filepath.Base(file))
		return s.resolveLogFile(candidate)
	}

	entries, err := os.ReadDir(job.LogsDir)
	if err != nil {
		return "", NewErrPathNotFound(job.LogsDir)
	}

	var latest string
	var latestMod int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = filepath.Join(job.LogsDir, e.Name())
			latestMod = mod
		}
	}
	if latest == "" {
		return "", NewErrPathNotFound(job.LogsDir)
	}
	return s.resolveLogFile(latest)
}
