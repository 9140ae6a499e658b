package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shono-io/funcship/runner"
)

func TestIsRateLimited(t *testing.T) {
	tt := []struct {
		name   string
		code   int
		output string
		want   bool
	}{
		{"marker with failure", 1, "Step 1/8 : FROM public.ecr.aws/lambda/python:3.8\ntoomanyrequests: Rate exceeded\n", true},
		{"marker with other exit code", 125, "toomanyrequests: Rate exceeded", true},
		{"marker with success", 0, "toomanyrequests: Rate exceeded", false},
		{"wrong case", 1, "TooManyRequests: rate exceeded", false},
		{"other rate limit phrasing", 1, "429 Too Many Requests", false},
		{"partial marker", 1, "toomanyrequests: Rate", false},
		{"unrelated failure", 1, "COPY failed: file not found", false},
		{"empty output", 1, "", false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := IsRateLimited(&runner.Result{ExitCode: tc.code, Output: tc.output})
			assert.Equal(t, tc.want, got)
		})
	}

	assert.False(t, IsRateLimited(nil))
}
