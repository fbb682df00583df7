package transfer

import (
	"strings"

	"github.com/eth-cscs/firecrest-v2/internal/apierr"
)

// FormatDirectives joins a cluster's configured scheduler directives
// (#SBATCH/#PBS lines) into the job script's header block, substituting
// {account} when present. Grounded on s3_datatransfer.py's
// _format_directives: a bare {account} placeholder with no account supplied
// is a client error (400), not a server error, since the caller could have
// supplied one.
func FormatDirectives(directives []string, account string) (string, error) {
	joined := strings.Join(directives, "\n")
	if strings.Contains(joined, "{account}") {
		if account == "" {
			return "", apierr.AccountRequired()
		}
		joined = strings.ReplaceAll(joined, "{account}", account)
	}
	return joined, nil
}
