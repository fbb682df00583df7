package fsops

import (
	"io"

	"github.com/gravitational/trace"
	"github.com/pkg/sftp"
)

// SFTPDownload reads path's full contents over an already-open SFTP
// session. Used as the fast path for the small-file download endpoint in
// place of the base64-over-exec round trip, when the remote supports SFTP.
func SFTPDownload(sc *sftp.Client, path string) ([]byte, error) {
	f, err := sc.Open(path)
	if err != nil {
		return nil, trace.Wrap(err, "sftp open %s", path)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, trace.Wrap(err, "sftp read %s", path)
	}
	return content, nil
}

// SFTPUpload writes content to path over an already-open SFTP session,
// creating or truncating the destination file.
func SFTPUpload(sc *sftp.Client, path string, content []byte) error {
	f, err := sc.Create(path)
	if err != nil {
		return trace.Wrap(err, "sftp create %s", path)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return trace.Wrap(err, "sftp write %s", path)
	}
	return nil
}
