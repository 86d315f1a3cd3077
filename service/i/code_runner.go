package i

import "context"

// RunResult is the outcome of executing a code submission.
type RunResult struct {
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	Time          string
}

// CodeRunner executes a code submission in some language and reports its
// output. Implementations must handle unknown language names gracefully
// instead of failing the call.
type CodeRunner interface {
	Run(ctx context.Context, code, language string) (*RunResult, error)
}
