package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalYAML = `
appDebug: true
apisRootPath: /api/v1
auth:
  authentication:
    tokenUrl: https://idp.example.com/token
sshCredentials:
  keys:
    alice:
      privateKey: test-key
clusters:
  - name: daint
    ssh:
      host: daint.example.com
    scheduler:
      type: slurm
    probing:
      interval: 30s
    fileSystems:
      - path: /scratch
        dataType: scratch
        defaultWorkDir: true
`

func TestParseMinimal(t *testing.T) {
	settings, err := Parse([]byte(minimalYAML), "/tmp")
	require.NoError(t, err)
	require.True(t, settings.AppDebug)
	require.Equal(t, "/api/v1", settings.APIsRootPath)
	require.Len(t, settings.Clusters, 1)
	require.Equal(t, "daint", settings.Clusters[0].Name)
	require.Equal(t, "/scratch", settings.Clusters[0].DefaultWorkDir())
}

func TestParseDataTransferDefaults(t *testing.T) {
	settings, err := Parse([]byte(minimalYAML), "/tmp")
	require.NoError(t, err)
	require.Equal(t, 50000, settings.DataTransfer.Streamer.PortRangeStart)
	require.Equal(t, 60000, settings.DataTransfer.Streamer.PortRangeEnd)
	require.Equal(t, []string{"localhost"}, settings.DataTransfer.Streamer.PublicIPs)
	require.Equal(t, "localhost", settings.DataTransfer.Streamer.Host)
	require.Equal(t, int64(5*1024*1024*1024), settings.DataTransfer.Streamer.InboundTransferLimit)
}

func TestParseDataTransferOverride(t *testing.T) {
	yaml := minimalYAML + `
dataTransfer:
  wormhole:
    pypiIndexUrl: https://pypi.example.com/simple
  streamer:
    portRangeStart: 40000
    portRangeEnd: 40100
    host: 10.0.0.1
`
	settings, err := Parse([]byte(yaml), "/tmp")
	require.NoError(t, err)
	require.Equal(t, "https://pypi.example.com/simple", settings.DataTransfer.Wormhole.PyPIIndexURL)
	require.Equal(t, 40000, settings.DataTransfer.Streamer.PortRangeStart)
	require.Equal(t, 40100, settings.DataTransfer.Streamer.PortRangeEnd)
	require.Equal(t, "10.0.0.1", settings.DataTransfer.Streamer.Host)
}

func TestParseRejectsBothSSHCredentialShapes(t *testing.T) {
	yaml := `
sshCredentials:
  url: https://signer.example.com
  keys:
    alice:
      privateKey: test-key
clusters:
  - name: daint
    ssh:
      host: daint.example.com
    scheduler:
      type: slurm
    probing:
      interval: 30s
    fileSystems:
      - path: /scratch
        defaultWorkDir: true
`
	_, err := Parse([]byte(yaml), "/tmp")
	require.Error(t, err)
}

func TestParseRejectsMissingDefaultWorkDir(t *testing.T) {
	yaml := `
sshCredentials:
  keys:
    alice:
      privateKey: test-key
clusters:
  - name: daint
    ssh:
      host: daint.example.com
    scheduler:
      type: slurm
    probing:
      interval: 30s
    fileSystems:
      - path: /scratch
`
	_, err := Parse([]byte(yaml), "/tmp")
	require.Error(t, err)
}

func TestParseRejectsUnknownSchedulerType(t *testing.T) {
	yaml := `
sshCredentials:
  keys:
    alice:
      privateKey: test-key
clusters:
  - name: daint
    ssh:
      host: daint.example.com
    scheduler:
      type: condor
    probing:
      interval: 30s
    fileSystems:
      - path: /scratch
        defaultWorkDir: true
`
	_, err := Parse([]byte(yaml), "/tmp")
	require.Error(t, err)
}

func TestLoadFromEnvMissing(t *testing.T) {
	t.Setenv("YAML_CONFIG_FILE", "")
	t.Setenv("INPUT_YAML_CONFIG_FILE", "")
	_, err := LoadFromEnv()
	require.Error(t, err)
}
