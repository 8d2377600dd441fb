package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

type fakeContainer struct {
	startErr error
	execExit int
	execErr  error
}

func (f *fakeContainer) StartOrReuse(_ context.Context, projectID, executionID string) (*ContainerResult, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &ContainerResult{ContainerID: "c1", ContainerName: "clarity-project-" + projectID, ContainerStatus: "started"}, nil
}

func (f *fakeContainer) Exec(_ context.Context, _ string, _ []string) (string, string, int, error) {
	return "", "", f.execExit, f.execErr
}

type fakeExecutor struct {
	result     *CommandResult
	err        error
	gotRepoURL string
	gotBranch  string
}

func (f *fakeExecutor) Execute(_ context.Context, _, _, _, repoURL, branch string) (*CommandResult, error) {
	f.gotRepoURL = repoURL
	f.gotBranch = branch
	return f.result, f.err
}

func TestPrepNode_RequiresProjectID(t *testing.T) {
	tc := taskcontext.Empty()
	_, err := PrepNode{}.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestPrepNode_RequiresExecutionID(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Metadata["project_id"] = "p1"
	_, err := PrepNode{}.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestPrepNode_Succeeds(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Metadata["project_id"] = "p1"
	tc.Metadata["execution_id"] = "e1"
	out, err := PrepNode{}.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "running", out.Metadata["status"])
}

func TestProvisionNode_Succeeds(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Metadata["project_id"] = "p1"
	node := ProvisionNode{Container: &fakeContainer{}}

	out, err := node.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "c1", out.Metadata["container_id"])
}

func TestProvisionNode_PropagatesError(t *testing.T) {
	tc := taskcontext.Empty()
	node := ProvisionNode{Container: &fakeContainer{startErr: assertErr}}
	_, err := node.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestInstallNode_FailureAfterRetriesIsError(t *testing.T) {
	tc := taskcontext.Empty()
	node := InstallNode{Executor: &fakeExecutor{result: &CommandResult{Success: false, Attempts: 2}}}
	_, err := node.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestInstallNode_SuccessRecordsFiles(t *testing.T) {
	tc := taskcontext.Empty()
	node := InstallNode{Executor: &fakeExecutor{result: &CommandResult{Success: true, Attempts: 1, FilesChanged: []string{"package-lock.json"}}}}
	out, err := node.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Contains(t, out.Metadata["files_modified"], "package-lock.json")
}

func TestInstallNode_PassesRepoURLAndDefaultsBranch(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Event["repo_url"] = "git@example.com:acme/widget.git"
	fe := &fakeExecutor{result: &CommandResult{Success: true, Attempts: 1}}
	_, err := InstallNode{Executor: fe}.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "git@example.com:acme/widget.git", fe.gotRepoURL)
	assert.Equal(t, "main", fe.gotBranch)
}

func TestInstallNode_SkipsCheckoutWithoutRepoURL(t *testing.T) {
	tc := taskcontext.Empty()
	fe := &fakeExecutor{result: &CommandResult{Success: true, Attempts: 1}}
	_, err := InstallNode{Executor: fe}.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Empty(t, fe.gotRepoURL)
}

func TestBuildNode_UsesConfiguredBranch(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Event["repo_url"] = "https://example.com/acme/widget.git"
	tc.Metadata["branch"] = "release/1.2"
	fe := &fakeExecutor{result: &CommandResult{Success: true, Attempts: 1}}
	_, err := BuildNode{Executor: fe}.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "release/1.2", fe.gotBranch)
}

func TestPushNode_RequiresContainer(t *testing.T) {
	tc := taskcontext.Empty()
	node := PushNode{Container: &fakeContainer{}}
	_, err := node.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestPushNode_NonZeroExitIsError(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Metadata["container_id"] = "c1"
	node := PushNode{Container: &fakeContainer{execExit: 1}}
	_, err := node.Run(context.Background(), tc)
	require.Error(t, err)
}

func TestPushNode_Succeeds(t *testing.T) {
	tc := taskcontext.Empty()
	tc.Metadata["container_id"] = "c1"
	node := PushNode{Container: &fakeContainer{execExit: 0}}
	out, err := node.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Metadata["status"])
}

var assertErr = &testErr{"start failed"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
