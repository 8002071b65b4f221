// Package gateway sends a single system+user exchange to a language model
// and returns the text of the first content segment of the reply.
//
// A Gateway never retries. Any failure to obtain a reply, including a
// non-2xx status or an empty content list, is returned wrapping
// errors.ErrTransport.
package gateway

import (
	"context"
	"fmt"

	"github.com/karimd18/project-C-case-study/errors"
)

// Request is one model call.
type Request struct {
	System    string
	User      string
	Model     string // empty means the backend's configured model
	MaxTokens int
}

// Gateway performs one model call.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete implements Gateway.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (r Request) validate() error {
	if r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", errors.ErrTransport, r.MaxTokens)
	}
	return nil
}

func transportError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errors.ErrTransport, fmt.Sprintf(format, args...))
}
