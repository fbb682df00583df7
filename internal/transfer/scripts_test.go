package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderScriptMove(t *testing.T) {
	out, err := RenderScript("slurm_job_move.sh.tmpl", map[string]any{
		"sbatch_directives": "#SBATCH --time=01:00:00",
		"source_path":       "/scratch/a",
		"target_path":       "/scratch/b",
	})
	require.NoError(t, err)
	require.Contains(t, out, "#SBATCH --time=01:00:00")
	require.Contains(t, out, `mv -- "/scratch/a" "/scratch/b"`)
}

func TestRenderScriptUnknownTemplate(t *testing.T) {
	_, err := RenderScript("does_not_exist.sh.tmpl", nil)
	require.Error(t, err)
}
