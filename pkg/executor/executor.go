// Package executor runs install/build commands inside a project container
// under a hard 2-attempt retry contract, grounded on the command execution
// service this module's behavior was distilled from.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/masking"
)

const maxAttempts = 2

// ValidateRetryLimit is the one place the 2-attempt ceiling lives.
func ValidateRetryLimit(n int) error {
	if n < 1 || n > maxAttempts {
		return apperr.New(apperr.Validation, fmt.Sprintf("max_attempts must be between 1 and %d", maxAttempts))
	}
	return nil
}

// Attempt records one failed try; successes are not appended here.
type Attempt struct {
	AttemptNumber int
	ExitCode      int
	Stderr        string
	State         string
}

// Result is the documented ExecutionResult shape.
type Result struct {
	Success         bool
	ExecutionID     string
	ProjectID       string
	StdoutOutput    string
	StderrOutput    string
	ExitCode        int
	TotalDurationMs int64
	ContainerID     string
	AttemptCount    int
	RetryAttempts   []Attempt
	FinalAttempt    string
	FilesModified   []string
}

// Provisioner is the container-manager surface the executor depends on.
type Provisioner interface {
	StartOrReuse(ctx context.Context, projectID, executionID string) (*container.Result, error)
	Exec(ctx context.Context, containerID string, cmd []string) (stdout, stderr string, exitCode int, err error)
	CleanupExpired(ctx context.Context, maxAgeDays int, projectID string) (*container.CleanupResult, error)
}

// Executor runs bounded-retry commands, holding one mutex per project_id
// for the duration of execute (spec §4.7 concurrency model).
type Executor struct {
	container Provisioner
	logger    *slog.Logger
	timeout   time.Duration
	masker    *masking.Service

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// SetMasker installs the secret-redaction service applied to captured
// stdout/stderr before it is stored in task_context or broadcast. Nil is a
// valid no-op value, matching masking.Service's own nil-safe behavior.
func (e *Executor) SetMasker(masker *masking.Service) {
	e.masker = masker
}

func (e *Executor) mask(s string) string {
	if e.masker == nil {
		return s
	}
	return e.masker.MaskCommandOutput(s)
}

func New(provisioner Provisioner, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Executor{
		container: provisioner,
		logger:    logger,
		timeout:   timeout,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *Executor) projectLock(projectID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[projectID] = lock
	}
	return lock
}

// Execute runs command (kind "install" or "build") with up to 2 attempts,
// cleaning up the container between failed attempts. repoURL/branch are
// optional: when repoURL is empty, the repo-checkout step is skipped
// (some callers, e.g. tests and PLACEHOLDER-adjacent commands, run against
// a container that already has a workspace).
func (e *Executor) Execute(ctx context.Context, projectID, kind, command, repoURL, branch string) (*Result, error) {
	return e.executeWithAttempts(ctx, projectID, kind, command, repoURL, branch, maxAttempts)
}

func (e *Executor) executeWithAttempts(ctx context.Context, projectID, kind, command, repoURL, branch string, maxAttemptsN int) (*Result, error) {
	if err := ValidateRetryLimit(maxAttemptsN); err != nil {
		return nil, err
	}

	lock := e.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	executionID := uuid.New().String()
	start := time.Now()

	var attempts []Attempt
	var lastExit int
	var lastStderr string

	for attempt := 1; attempt <= maxAttemptsN; attempt++ {
		result, err := e.runOneAttempt(ctx, projectID, executionID, kind, command, repoURL, branch)
		if err != nil {
			if ctx.Err() != nil {
				attempts = append(attempts, Attempt{AttemptNumber: attempt, ExitCode: -1, Stderr: err.Error(), State: "cancelled"})
				if _, cleanupErr := e.container.CleanupExpired(ctx, 0, projectID); cleanupErr != nil {
					e.logger.Warn("cleanup after cancellation failed", "project_id", projectID, "error", cleanupErr)
				}
				return nil, apperr.Wrap(apperr.CancelledKind, fmt.Sprintf("%s cancelled", kind), ctx.Err())
			}

			attempts = append(attempts, Attempt{AttemptNumber: attempt, ExitCode: -1, Stderr: err.Error(), State: "failed"})
			lastExit = -1
			lastStderr = err.Error()

			if attempt < maxAttemptsN {
				if _, cleanupErr := e.container.CleanupExpired(ctx, 0, projectID); cleanupErr != nil {
					e.logger.Warn("between-attempt cleanup failed", "project_id", projectID, "error", cleanupErr)
				}
				continue
			}

			return nil, apperr.New(apperr.AiderExecution, fmt.Sprintf("%s failed after %d attempts: %s", kind, maxAttemptsN, truncate(lastStderr, 500)))
		}

		if result.exitCode == 0 {
			files := captureArtifacts(result.stdout)
			return &Result{
				Success:         true,
				ExecutionID:     executionID,
				ProjectID:       projectID,
				StdoutOutput:    result.stdout,
				StderrOutput:    result.stderr,
				ExitCode:        0,
				TotalDurationMs: time.Since(start).Milliseconds(),
				ContainerID:     result.containerID,
				AttemptCount:    attempt,
				RetryAttempts:   attempts,
				FinalAttempt:    "success",
				FilesModified:   files,
			}, nil
		}

		attempts = append(attempts, Attempt{AttemptNumber: attempt, ExitCode: result.exitCode, Stderr: result.stderr, State: "failed"})
		lastExit = result.exitCode
		lastStderr = result.stderr

		if attempt < maxAttemptsN {
			if _, err := e.container.CleanupExpired(ctx, 0, projectID); err != nil {
				e.logger.Warn("between-attempt cleanup failed", "project_id", projectID, "error", err)
			}
		}
	}

	return nil, apperr.New(apperr.AiderExecution, fmt.Sprintf("%s failed after %d attempts: exit %d: %s", kind, maxAttemptsN, lastExit, truncate(lastStderr, 500)))
}

type attemptResult struct {
	stdout      string
	stderr      string
	exitCode    int
	containerID string
}

func (e *Executor) runOneAttempt(ctx context.Context, projectID, executionID, kind, command, repoURL, branch string) (*attemptResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	provision, err := e.container.StartOrReuse(attemptCtx, projectID, executionID)
	if err != nil {
		return nil, err
	}

	if repoURL != "" {
		if _, stderr, exit, err := e.container.Exec(attemptCtx, provision.ContainerID, cloneCommand(repoURL, branch)); err != nil || exit != 0 {
			return nil, apperr.New(apperr.AiderExecution, fmt.Sprintf("repo checkout failed: %s", truncate(stderr, 300)))
		}
	}

	if _, _, exit, err := e.container.Exec(attemptCtx, provision.ContainerID, []string{"npm", "--version"}); err != nil || exit != 0 {
		return nil, apperr.New(apperr.AiderExecution, "npm toolchain not available")
	}

	if _, _, exit, err := e.container.Exec(attemptCtx, provision.ContainerID, []string{"sh", "-c", "test -f package.json"}); err != nil || exit != 0 {
		return nil, apperr.New(apperr.AiderExecution, "package.json not found in workspace")
	}

	if kind == "build" {
		script, scriptName := buildScriptCheck(command)
		if scriptName != "" {
			if _, _, exit, err := e.container.Exec(attemptCtx, provision.ContainerID, script); err != nil || exit != 0 {
				return nil, apperr.New(apperr.AiderExecution, fmt.Sprintf("build script %q not found in package.json", scriptName))
			}
		}
	}

	stdout, stderr, exitCode, err := e.container.Exec(attemptCtx, provision.ContainerID, shellSplit(command))
	if err != nil {
		return nil, apperr.Wrap(apperr.AiderExecution, fmt.Sprintf("failed to run %s command", kind), err)
	}

	return &attemptResult{stdout: e.mask(stdout), stderr: e.mask(stderr), exitCode: exitCode, containerID: provision.ContainerID}, nil
}

// cloneCommand builds an idempotent checkout: clone if /workspace/<repo>
// doesn't exist yet, otherwise fetch and hard-reset to the target branch.
func cloneCommand(repoURL, branch string) []string {
	if branch == "" {
		branch = "main"
	}
	dir := repoWorkspaceDir(repoURL)
	script := fmt.Sprintf(
		`set -e; if [ -d %[1]s/.git ]; then cd %[1]s && git fetch origin %[2]s && git checkout %[2]s && git reset --hard origin/%[2]s; else git clone --branch %[2]s %[3]s %[1]s; fi`,
		shQuote(dir), shQuote(branch), shQuote(repoURL),
	)
	return []string{"sh", "-c", script}
}

// shQuote wraps s in single quotes for safe interpolation into a `sh -c`
// script, escaping any embedded single quotes. repoURL/branch originate from
// the task submission payload and must never be trusted as shell syntax.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func repoWorkspaceDir(repoURL string) string {
	name := repoURL
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" {
		name = "repo"
	}
	return "/workspace/" + name
}

// buildScriptCheck extracts the npm script name from a "npm run <script>"
// style build command and returns the exec args that verify it is declared
// in package.json. Returns an empty scriptName (and nil script) when the
// command doesn't follow that shape, in which case the check is skipped.
func buildScriptCheck(command string) (script []string, scriptName string) {
	fields := shellSplit(command)
	for i := 1; i+1 < len(fields); i++ {
		if fields[i] == "run" && (fields[i-1] == "npm" || fields[i-1] == "yarn" || fields[i-1] == "pnpm") {
			scriptName = fields[i+1]
			break
		}
	}
	if scriptName == "" {
		return nil, ""
	}
	check := fmt.Sprintf(`node -e "process.exit(require('./package.json').scripts && require('./package.json').scripts[%q] ? 0 : 1)"`, scriptName)
	return []string{"sh", "-c", check}, scriptName
}

var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^Modified\s+(.+)$`),
	regexp.MustCompile(`(?im)^Created\s+(.+)$`),
	regexp.MustCompile(`(?im)^Deleted\s+(.+)$`),
}

// captureArtifacts scans stdout for the three file-change patterns,
// deduplicating and trimming. Never returns an error: malformed output
// just yields fewer matches, per the "never fail the run" contract.
func captureArtifacts(stdout string) []string {
	seen := map[string]struct{}{}
	var files []string
	for _, pattern := range artifactPatterns {
		for _, match := range pattern.FindAllStringSubmatch(stdout, -1) {
			if len(match) < 2 {
				continue
			}
			file := strings.TrimSpace(match[1])
			if file == "" {
				continue
			}
			if _, ok := seen[file]; ok {
				continue
			}
			seen[file] = struct{}{}
			files = append(files, file)
		}
	}
	return files
}

func shellSplit(command string) []string {
	return strings.Fields(command)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
