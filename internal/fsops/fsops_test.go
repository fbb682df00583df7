package fsops

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func TestLsRenderFlags(t *testing.T) {
	l := NewLs("/scratch/data", true, true, true, false)
	require.Equal(t, "timeout 5 ls -laR --numeric-uid-gid -- '/scratch/data'", l.Render())
}

func TestLsRenderNoFlags(t *testing.T) {
	l := NewLs("/scratch/data", false, false, false, true)
	require.Equal(t, "timeout 5 ls -l -L -- '/scratch/data'", l.Render())
}

func TestLsParseLong(t *testing.T) {
	out := "total 8\n" +
		"drwxr-xr-x 2 user group 4096 Jan  1 00:00 sub\n" +
		"-rw-r--r-- 1 user group  123 Jan  2 00:01 file.txt\n" +
		"lrwxrwxrwx 1 user group    4 Jan  3 00:02 link.txt -> file.txt\n"
	l := NewLs("/scratch/data", false, false, false, false)
	res, err := l.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	entries := res.([]LsEntry)
	require.Len(t, entries, 3)
	require.Equal(t, "sub", entries[0].Name)
	require.Equal(t, "directory", entries[0].Type)
	require.Equal(t, "file.txt", entries[1].Name)
	require.Equal(t, "file", entries[1].Type)
	require.Equal(t, int64(123), entries[1].Size)
	require.Equal(t, "link.txt", entries[2].Name)
	require.Equal(t, "symlink", entries[2].Type)
	require.Equal(t, "file.txt", entries[2].LinkTarget)
}

func TestLsParseError(t *testing.T) {
	l := NewLs("/missing", false, false, false, false)
	_, err := l.Parse(nil, []byte("ls: cannot access '/missing': No such file or directory"), 2)
	require.True(t, trace.IsNotFound(err))
}

func TestLsParseSingleTarget(t *testing.T) {
	l := newLsSingle("/scratch/data/file.txt")
	out := "-rw-r--r-- 1 0 0 10 Jan  1 00:00 file.txt\n"
	res, err := l.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	entry, ok := res.(LsEntry)
	require.True(t, ok)
	require.Equal(t, "file.txt", entry.Name)
}

func TestLsParseSingleTargetEmpty(t *testing.T) {
	l := newLsSingle("/scratch/data/file.txt")
	_, err := l.Parse([]byte(""), nil, 0)
	require.True(t, trace.IsNotFound(err))
}

func TestStatRenderAndParse(t *testing.T) {
	s := NewStat("/scratch/data/file.txt", true)
	require.Contains(t, s.Render(), "-L ")
	require.Contains(t, s.Render(), "--format=")

	out := "81a4\t123456\t2049\t1\t1000\t1000\t4096\t1700000000\t1700000001\t1700000002\n"
	res, err := s.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	st := res.(*StatResult)
	require.Equal(t, int64(4096), st.Size)
	require.Equal(t, uint64(1000), st.UID)
	require.Equal(t, int64(1700000000), st.Atime)
}

func TestStatParseMalformed(t *testing.T) {
	s := NewStat("/x", false)
	_, err := s.Parse([]byte("garbage"), nil, 0)
	require.Error(t, err)
}

func TestChecksumParse(t *testing.T) {
	c := NewChecksum("/x")
	res, err := c.Parse([]byte("deadbeef  /x\n"), nil, 0)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", res)
}

func TestFileTypeParse(t *testing.T) {
	f := NewFileType("/x")
	res, err := f.Parse([]byte(" ASCII text \n"), nil, 0)
	require.NoError(t, err)
	require.Equal(t, "ASCII text", res)
}

func TestHeadTailRenderBytes(t *testing.T) {
	n := int64(100)
	h := &Head{Path: "/x", Bytes: &n}
	require.Contains(t, h.Render(), "-c 100")

	tl := &Tail{Path: "/x", Bytes: &n, SkipHeading: true}
	require.Contains(t, tl.Render(), "-c +101")
}

func TestHeadTailRenderLinesDefault(t *testing.T) {
	h := &Head{Path: "/x"}
	require.Contains(t, h.Render(), "-n 10")
}

func TestValidateHeadTailRejectsBoth(t *testing.T) {
	n := int64(5)
	err := ValidateHeadTail(&n, &n)
	require.True(t, trace.IsBadParameter(err))
}

func TestHeadRenderBothInvalid(t *testing.T) {
	n := int64(5)
	h := &Head{Path: "/x", Bytes: &n, Lines: &n}
	require.Equal(t, "false", h.Render())
}

func TestViewRenderAndParse(t *testing.T) {
	v := NewView("/x", 10, 25)
	require.Contains(t, v.Render(), "skip=2")

	block := make([]byte, 20)
	for i := range block {
		block[i] = byte('a' + i%26)
	}
	res, err := v.Parse(block, nil, 0)
	require.NoError(t, err)
	got := res.([]byte)
	require.Len(t, got, 10)
}

func TestBase64DownloadUpload(t *testing.T) {
	d := NewBase64Download("/x")
	require.Contains(t, d.Render(), "base64 -w0")

	u := NewBase64Upload("/x")
	require.Contains(t, u.Render(), "base64 -d")
}

func TestChainedRenderAndParse(t *testing.T) {
	cmd := NewChmod("/scratch/data", "0644")
	r := cmd.Render()
	require.Contains(t, r, "chmod -v '0644'")
	require.Contains(t, r, " && ")
	require.Contains(t, r, "ls -l --numeric-uid-gid")

	out := "-rw-r--r-- 1 0 0 10 Jan  1 00:00 data\n"
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	_, ok := res.(LsEntry)
	require.True(t, ok)
}

func TestChownRenderNoGroup(t *testing.T) {
	cmd := NewChown("/x", "alice", "")
	require.Contains(t, cmd.Render(), "chown -v 'alice'")
}

func TestChownRenderWithGroup(t *testing.T) {
	cmd := NewChown("/x", "alice", "users")
	require.Contains(t, cmd.Render(), "chown -v 'alice:users'")
}

func TestMkdirRenderParent(t *testing.T) {
	cmd := NewMkdir("/x/y", true)
	require.Contains(t, cmd.Render(), "mkdir -v -p -- '/x/y'")
}

func TestSymlinkRender(t *testing.T) {
	cmd := NewSymlink("/target", "/link")
	require.Contains(t, cmd.Render(), "ln -sv -- '/target' '/link'")
}

func TestRmRenderAndParse(t *testing.T) {
	cmd := NewRm("/x")
	require.Contains(t, cmd.Render(), "rm -rv -- '/x'")
	res, err := cmd.Parse(nil, nil, 0)
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestClassifyStderr(t *testing.T) {
	require.True(t, trace.IsNotFound(classifyStderr("No such file or directory", 1)))
	require.True(t, trace.IsAccessDenied(classifyStderr("Permission denied", 1)))
	require.True(t, trace.IsBadParameter(classifyStderr("Not a directory", 1)))
	require.True(t, trace.IsAlreadyExists(classifyStderr("File exists", 1)))

	err := classifyStderr("something weird happened", 3)
	require.Contains(t, err.Error(), "something weird happened")
	require.Contains(t, err.Error(), "3")
}

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, quote("it's"))
}
