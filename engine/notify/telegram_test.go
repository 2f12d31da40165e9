package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskmesh/store"
)

func TestFormatTerminalMessage_Completed(t *testing.T) {
	wf := &store.Workflow{ID: "wf-1", Goal: "ship the release", Status: store.WorkflowCompleted}
	msg := formatTerminalMessage(wf)
	require.Contains(t, msg, "wf-1")
	require.Contains(t, msg, "ship the release")
	require.Contains(t, msg, "COMPLETED")
	require.Contains(t, msg, "✅")
}

func TestFormatTerminalMessage_Failed(t *testing.T) {
	wf := &store.Workflow{ID: "wf-2", Goal: "deploy infra", Status: store.WorkflowFailed}
	msg := formatTerminalMessage(wf)
	require.Contains(t, msg, "FAILED")
	require.Contains(t, msg, "❌")
}
