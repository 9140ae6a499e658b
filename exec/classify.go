package exec

import (
	"strings"

	"github.com/shono-io/funcship/runner"
)

// RateLimitMarker is what the registry prints when a base image pull gets
// throttled during a build.
const RateLimitMarker = "toomanyrequests: Rate exceeded"

// IsRateLimited reports whether a failed build hit registry rate limiting.
// The marker is matched exactly and case sensitively.
func IsRateLimited(res *runner.Result) bool {
	if res == nil {
		return false
	}
	return res.ExitCode != 0 && strings.Contains(res.Output, RateLimitMarker)
}
