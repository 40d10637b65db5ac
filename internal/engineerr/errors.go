// Package engineerr defines the closed error taxonomy (§7) every stage of
// the generation pipeline reports through. A single sum type replaces the
// teacher's plain wrapped-error idiom (fmt.Errorf("...: %w")) with a typed
// Kind so the Orchestrator can branch on failure class without string
// matching.
package engineerr

import "fmt"

// Kind is the closed set of error categories the pipeline can fail with.
type Kind string

const (
	KindInvalidInput            Kind = "invalid_input"
	KindNetworkTimeout           Kind = "network_timeout"
	KindTerrainProcessingFailed  Kind = "terrain_processing_failed"
	KindLayerProcessingFailed    Kind = "layer_processing_failed"
	KindCancelled                Kind = "cancelled"
	KindInternalError            Kind = "internal_error"
)

// Error is the single error type the pipeline returns. Stage carries which
// stage the failure originated in (e.g. "terrain", "layer:roads") per §7.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no stage and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error carrying an underlying cause.
func Wrap(kind Kind, stage string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Stage: stage, Message: msg, Cause: cause}
}

// WithContext returns a copy of e with additional context entries merged
// in, used to attach a technical-detail block when debug mode is enabled.
func (e *Error) WithContext(ctx map[string]any) *Error {
	merged := make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	cp := *e
	cp.Context = merged
	return &cp
}

// Is reports whether err, or the first *Error found by following its
// Unwrap chain, is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
