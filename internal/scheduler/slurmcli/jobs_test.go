package slurmcli

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestSbatchCommandRenderWithScript(t *testing.T) {
	cmd := &sbatchCommand{desc: model.JobDescription{
		Name:             "my-job",
		WorkingDirectory: "/scratch/alice",
		Account:          "proj01",
		Script:           "#!/bin/bash\necho hi",
	}}
	r := cmd.Render()
	require.Contains(t, r, "sbatch --parsable")
	require.Contains(t, r, "--job-name='my-job'")
	require.Contains(t, r, "--chdir='/scratch/alice'")
	require.Contains(t, r, "--account='proj01'")
	require.Contains(t, r, "<<'FIRECREST_EOF'\n#!/bin/bash\necho hi\nFIRECREST_EOF")
}

func TestSbatchCommandRenderWithScriptPath(t *testing.T) {
	cmd := &sbatchCommand{desc: model.JobDescription{ScriptPath: "/scratch/alice/job.sh"}}
	r := cmd.Render()
	require.Contains(t, r, "'/scratch/alice/job.sh'")
	require.NotContains(t, r, "FIRECREST_EOF")
}

func TestSbatchCommandParseSuccess(t *testing.T) {
	cmd := &sbatchCommand{}
	res, err := cmd.Parse([]byte("123456;cluster\n"), nil, 0)
	require.NoError(t, err)
	require.Equal(t, int64(123456), res)
}

func TestSbatchCommandParseMalformed(t *testing.T) {
	cmd := &sbatchCommand{}
	_, err := cmd.Parse([]byte("not-a-number\n"), nil, 0)
	require.Error(t, err)
}

func TestSbatchCommandParseFailure(t *testing.T) {
	cmd := &sbatchCommand{}
	_, err := cmd.Parse(nil, []byte("sbatch: error: Batch job submission failed"), 1)
	require.Error(t, err)
}

func TestScontrolJobCommandParseSuccess(t *testing.T) {
	cmd := &scontrolJobCommand{jobID: 42}
	out := `{"jobs":[{"job_id":42,"name":"sim","user_name":"alice","account":"proj01","partition":"normal","nodes":"nid001","job_state":["RUNNING"],"state_reason":"None","work_dir":"/scratch/alice"}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	rec := res.(scontrolJobRecord)
	require.Equal(t, int64(42), rec.JobID)
	require.Equal(t, "sim", rec.Name)
}

func TestScontrolJobCommandParseNotFound(t *testing.T) {
	cmd := &scontrolJobCommand{jobID: 42}
	_, err := cmd.Parse(nil, []byte("scontrol: error: Invalid job id specified"), 1)
	require.True(t, trace.IsNotFound(err))
}

func TestScontrolJobCommandParseEmptyJobs(t *testing.T) {
	cmd := &scontrolJobCommand{jobID: 42}
	_, err := cmd.Parse([]byte(`{"jobs":[]}`), nil, 0)
	require.True(t, trace.IsNotFound(err))
}

func TestNormalizeJobState(t *testing.T) {
	cases := []struct {
		in   []string
		want model.JobState
	}{
		{[]string{"PENDING"}, model.JobStatePending},
		{[]string{"RUNNING"}, model.JobStateRunning},
		{[]string{"COMPLETING"}, model.JobStateRunning},
		{[]string{"COMPLETED"}, model.JobStateCompleted},
		{[]string{"CANCELLED"}, model.JobStateCancelled},
		{[]string{"FAILED"}, model.JobStateFailed},
		{[]string{"TIMEOUT"}, model.JobStateTimeout},
		{[]string{"UNKNOWN_STATE"}, model.JobStateUnknown},
		{nil, model.JobStateUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normalizeJobState(tc.in), "states=%v", tc.in)
	}
}

func TestSacctCommandRenderScopedToUser(t *testing.T) {
	cmd := &sacctCommand{allUsers: false, username: "alice"}
	require.Equal(t, "sacct --json --allocations -u 'alice'", cmd.Render())
}

func TestSacctCommandRenderAllUsers(t *testing.T) {
	cmd := &sacctCommand{allUsers: true}
	require.Equal(t, "sacct --json --allocations", cmd.Render())
}

func TestSacctCommandParse(t *testing.T) {
	cmd := &sacctCommand{}
	out := `{"jobs":[{"job_id":1,"name":"a","user":"alice","account":"proj01","partition":"normal","nodes":"nid01","working_directory":"/scratch/alice","state":{"current":["COMPLETED"],"reason":"None"},"time":{"elapsed":10,"submission":100,"start":101,"end":111,"suspended":0,"limit":{"number":3600}}}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	jobs := res.([]model.Job)
	require.Len(t, jobs, 1)
	require.Equal(t, model.JobStateCompleted, jobs[0].Status.State)
	require.Equal(t, int64(3600), jobs[0].Times.Limit)
}

func TestSacctMetadataCommandParseNotFound(t *testing.T) {
	cmd := &sacctMetadataCommand{jobID: 9}
	_, err := cmd.Parse([]byte(`{"jobs":[]}`), nil, 0)
	require.True(t, trace.IsNotFound(err))
}

func TestSacctMetadataCommandParseSuccess(t *testing.T) {
	cmd := &sacctMetadataCommand{jobID: 9}
	out := `{"jobs":[{"job_id":9,"name":"sim","stdin":"/dev/null","stdout":"out.log","stderr":"err.log"}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	meta := res.(*model.JobMetadata)
	require.Equal(t, "out.log", meta.StandardOutput)
	require.Equal(t, "err.log", meta.StandardError)
}
