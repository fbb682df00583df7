package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/fsops"
)

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, quote("it's"))
}

func TestTarCompressCommandPlain(t *testing.T) {
	cmd := tarCompressCommand("/scratch/data/file.txt", "/scratch/archive.tar.gz", "", false, fsops.CompressionGzip)
	require.Equal(t, "tar -czvf '/scratch/archive.tar.gz' -C '/scratch/data' 'file.txt'", cmd)
}

func TestTarCompressCommandWithPattern(t *testing.T) {
	cmd := tarCompressCommand("/scratch/data/file.txt", "/scratch/archive.tar.bz2", `.*\.log`, true, fsops.CompressionBzip2)
	require.Contains(t, cmd, "cd '/scratch/data'")
	require.Contains(t, cmd, `find . -type f -regex '.*\.log' -print0`)
	require.Contains(t, cmd, "--dereference ")
	require.Contains(t, cmd, "-cjvf '/scratch/archive.tar.bz2'")
}

func TestTarExtractCommand(t *testing.T) {
	cmd := tarExtractCommand("/scratch/archive.tar.xz", "/scratch/out", fsops.CompressionXz)
	require.Equal(t, "tar -xJvf '/scratch/archive.tar.xz' -C '/scratch/out'", cmd)
}

func TestTarFlag(t *testing.T) {
	require.Equal(t, "z", tarFlag(fsops.CompressionGzip))
	require.Equal(t, "j", tarFlag(fsops.CompressionBzip2))
	require.Equal(t, "J", tarFlag(fsops.CompressionXz))
	require.Equal(t, "", tarFlag(fsops.CompressionNone))
}
