package slurmcli

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func TestScontrolPingCommandParseSuccess(t *testing.T) {
	cmd := &scontrolPingCommand{}
	out := `{"pings":[{"mode":"primary","hostname":"ctld01","pinged":"UP"},{"mode":"backup","hostname":"ctld02","pinged":"DOWN"}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	results := res.([]pingResult)
	require.Len(t, results, 2)
	require.True(t, results[0].Pinged)
	require.False(t, results[1].Pinged)
}

func TestScontrolPingCommandParseFailure(t *testing.T) {
	cmd := &scontrolPingCommand{}
	_, err := cmd.Parse(nil, []byte("connection refused"), 1)
	require.Error(t, err)
}

func TestScancelCommandRenderAndParse(t *testing.T) {
	cmd := &scancelCommand{jobID: 77}
	require.Equal(t, "scancel 77", cmd.Render())

	res, err := cmd.Parse(nil, nil, 0)
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestScancelCommandParseFailure(t *testing.T) {
	cmd := &scancelCommand{jobID: 77}
	_, err := cmd.Parse(nil, []byte("scancel: error: Invalid job id specified"), 1)
	require.True(t, trace.IsNotFound(err))
}

func TestClassifyCLIErrorAccessDenied(t *testing.T) {
	err := classifyCLIError("Access/permission denied", 1)
	require.True(t, trace.IsAccessDenied(err))
}

func TestClassifyCLIErrorGeneric(t *testing.T) {
	err := classifyCLIError("something unexpected", 7)
	require.Contains(t, err.Error(), "exited 7")
}

func TestFormatAttachCommandDefaultEntrypoint(t *testing.T) {
	require.Equal(t, "sattach 100.0", formatAttachCommand(100, ""))
}

func TestFormatAttachCommandExplicitEntrypoint(t *testing.T) {
	require.Equal(t, "sattach 100.2", formatAttachCommand(100, "2"))
}
