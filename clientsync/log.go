package clientsync

import (
	"sort"
	"strings"
)

// Logging convention in the `clientsync` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation, with the exception of one time (infrequent)
//     initialization data that is useful for monitoring
//     this includes:
//     - refresh retries and terminal refresh failures
//     - queue persistence errors
// V(2):
//     key events for trace debugging and statistics
//     this includes:
//     - apply, ingest, complete with mutation ids that can be used to filter

func tokenSetString(tokens map[QueryToken]bool) string {
	tokenStrs := make([]string, 0, len(tokens))
	for token := range tokens {
		tokenStrs = append(tokenStrs, token.String())
	}
	sort.Strings(tokenStrs)
	return strings.Join(tokenStrs, ",")
}
