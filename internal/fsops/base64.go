package fsops

import (
	"encoding/base64"
	"fmt"

	"github.com/gravitational/trace"
)

// Base64 implements the small-file upload/download path: on download, the
// remote file is base64-encoded before being streamed back; on upload, the
// request body is base64-encoded by the caller and piped as the command's
// stdin. Only used below max_ops_file_size -- anything larger must go
// through internal/transfer instead.
type Base64 struct {
	Path   string
	Decode bool
}

func NewBase64Download(path string) *Base64 { return &Base64{Path: path} }
func NewBase64Upload(path string) *Base64   { return &Base64{Path: path, Decode: true} }

func (b *Base64) Render() string {
	if b.Decode {
		return withTimeout(fmt.Sprintf("base64 -d | tee -- %s > /dev/null", quote(b.Path)))
	}
	return withTimeout(fmt.Sprintf("base64 -w0 -- %s", quote(b.Path)))
}

func (b *Base64) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyStderr(string(stderr), exitStatus)
	}
	if b.Decode {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(stdout))
	if err != nil {
		return nil, trace.Wrap(err, "decoding base64 command output")
	}
	return decoded, nil
}

// EncodeUpload base64-encodes an upload body for piping to a Decode=true
// Base64 command's stdin.
func EncodeUpload(content []byte) []byte {
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(content)))
	base64.StdEncoding.Encode(encoded, content)
	return encoded
}
