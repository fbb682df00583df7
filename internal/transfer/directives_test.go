package transfer

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func TestFormatDirectivesNoPlaceholder(t *testing.T) {
	out, err := FormatDirectives([]string{"#SBATCH --time=01:00:00", "#SBATCH --partition=debug"}, "")
	require.NoError(t, err)
	require.Equal(t, "#SBATCH --time=01:00:00\n#SBATCH --partition=debug", out)
}

func TestFormatDirectivesSubstitutesAccount(t *testing.T) {
	out, err := FormatDirectives([]string{"#SBATCH --account={account}"}, "proj01")
	require.NoError(t, err)
	require.Equal(t, "#SBATCH --account=proj01", out)
}

func TestFormatDirectivesMissingAccountIsBadRequest(t *testing.T) {
	_, err := FormatDirectives([]string{"#SBATCH --account={account}"}, "")
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err))
}

func TestFormatDirectivesEmpty(t *testing.T) {
	out, err := FormatDirectives(nil, "")
	require.NoError(t, err)
	require.Equal(t, "", out)
}
