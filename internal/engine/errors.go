package engine

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/internal/provider"
)

// ModelFailure records why one model produced no answer.
type ModelFailure struct {
	Model   string
	Kind    provider.ErrorKind
	Message string
}

// BatchExhaustedError is returned when every model in a batch failed. It
// enumerates the per-model breakdown so the caller can report each failure.
type BatchExhaustedError struct {
	Failures []ModelFailure
}

func (e *BatchExhaustedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all %d models failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, " %s (%s: %s);", f.Model, f.Kind, f.Message)
	}
	return strings.TrimRight(sb.String(), ";")
}
