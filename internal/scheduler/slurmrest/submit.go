package slurmrest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// jobDescriptionBody is the SLURM REST API's job submission shape. environment
// is `any` because it is serialized as either an object or a list depending
// on api_version.
type jobDescriptionBody struct {
	Name                    string `json:"name,omitempty"`
	CurrentWorkingDirectory string `json:"current_working_directory,omitempty"`
	StandardInput           string `json:"standard_input,omitempty"`
	StandardOutput          string `json:"standard_output,omitempty"`
	StandardError           string `json:"standard_error,omitempty"`
	Environment             any    `json:"environment,omitempty"`
	Script                  string `json:"script,omitempty"`
	Account                 string `json:"account,omitempty"`
}

var (
	v0041 = parseAPIVersion("0.0.41")
	v0039 = parseAPIVersion("0.0.39")
)

// buildSubmitBody shapes the request body according to SLURM REST's
// version gates: for api_version >= 0.0.39 the environment map becomes a
// "K=V" string list; for api_version < 0.0.41 the script is sent as a
// top-level field and stripped from the job object.
func buildSubmitBody(desc model.JobDescription, apiVersionStr string) map[string]any {
	version := parseAPIVersion(apiVersionStr)

	job := jobDescriptionBody{
		Name:                    desc.Name,
		CurrentWorkingDirectory: desc.WorkingDirectory,
		StandardInput:           desc.StandardInput,
		StandardOutput:          desc.StandardOutput,
		StandardError:           desc.StandardError,
		Script:                  desc.Script,
		Account:                 desc.Account,
	}

	if version.atLeast(v0039) {
		envList := make([]string, 0, len(desc.Env))
		for k, v := range desc.Env {
			if v != "" {
				envList = append(envList, k+"="+v)
			} else {
				envList = append(envList, k)
			}
		}
		job.Environment = envList
	} else {
		job.Environment = desc.Env
	}

	if version.less(v0041) {
		job.Script = ""
		return map[string]any{"job": job, "script": desc.Script}
	}
	return map[string]any{"job": job}
}

// SubmitJob implements scheduler.Client.
func (c *Client) SubmitJob(ctx context.Context, desc model.JobDescription) (int64, error) {
	if desc.Script == "" && desc.ScriptPath == "" {
		return 0, trace.BadParameter("job description must set exactly one of script or scriptPath")
	}
	if desc.Script != "" && desc.ScriptPath != "" {
		return 0, trace.BadParameter("job description must set exactly one of script or scriptPath")
	}

	body := buildSubmitBody(desc, c.apiVersion)
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, trace.Wrap(err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/job/submit", payload)
	if err != nil {
		return 0, trace.Wrap(err)
	}

	var result struct {
		JobID int64 `json:"job_id"`
	}
	if err := c.do(req, &result); err != nil {
		return 0, trace.Wrap(err)
	}
	return result.JobID, nil
}
