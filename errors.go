package designer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/resolver"
)

// Sentinel errors for designer-level conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrNoPayloads indicates an import called without documents.
	ErrNoPayloads = errors.New("no nodesets to import")

	// ErrNoCache indicates a designer built without a nodeset cache.
	ErrNoCache = errors.New("no nodeset cache configured")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by the pipeline stage that failed.
const (
	// KindParse represents malformed NodeSet2 documents.
	KindParse = "parse"

	// KindDependency represents missing, cyclic or already imported models.
	KindDependency = "dependency"

	// KindResolution represents references that no loaded model defines.
	KindResolution = "resolution"

	// KindValidation represents invalid input, such as a document whose
	// model entry does not match its identity.
	KindValidation = "validation"

	// KindStorage represents failures of the cache, the store or the registry.
	KindStorage = "storage"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// DesignerError is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// DesignerError supports error unwrapping, making it compatible with
// errors.Is() and errors.As().
//
// Example usage:
//
//	var derr *designer.DesignerError
//	if errors.As(err, &derr) && derr.Kind == designer.KindDependency {
//		fmt.Println("import needs more models:", derr.Context["missing"])
//	}
type DesignerError struct {
	// Op is the operation that failed (e.g., "Designer.Import").
	Op string

	// Kind categorizes the error (e.g., KindParse, KindDependency).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context carries additional debugging information such as the
	// namespace being imported or the missing models.
	Context map[string]any
}

// Error implements the error interface.
func (e *DesignerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("designer: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("designer: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("designer: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *DesignerError) Unwrap() error {
	return e.Err
}

// Is matches a target DesignerError by Kind, and by Op when the target
// sets one. Other targets are matched against the underlying error.
func (e *DesignerError) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*DesignerError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with ctx merged into its context.
func (e *DesignerError) WithContext(ctx map[string]any) *DesignerError {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewParseError creates a new DesignerError with KindParse.
func NewParseError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindParse, Err: err}
}

// NewDependencyError creates a new DesignerError with KindDependency.
func NewDependencyError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindDependency, Err: err}
}

// NewResolutionError creates a new DesignerError with KindResolution.
func NewResolutionError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindResolution, Err: err}
}

// NewValidationError creates a new DesignerError with KindValidation.
func NewValidationError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindValidation, Err: err}
}

// NewStorageError creates a new DesignerError with KindStorage.
func NewStorageError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindStorage, Err: err}
}

// NewConfigurationError creates a new DesignerError with KindConfiguration.
func NewConfigurationError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindConfiguration, Err: err}
}

// NewInternalError creates a new DesignerError with KindInternal.
func NewInternalError(op string, err error) *DesignerError {
	return &DesignerError{Op: op, Kind: KindInternal, Err: err}
}

// classify wraps err in a DesignerError whose kind follows the package
// sentinel it carries. Errors without a known sentinel get fallback.
func classify(op string, err error, fallback string) *DesignerError {
	var derr *DesignerError
	if errors.As(err, &derr) {
		return derr
	}

	kind := fallback
	switch {
	case errors.Is(err, nodeset.ErrParse),
		errors.Is(err, nodeset.ErrNoModel),
		errors.Is(err, nodeset.ErrInvalidNodeID):
		kind = KindParse
	case errors.Is(err, resolver.ErrMissingDependency),
		errors.Is(err, resolver.ErrAlreadyImported),
		errors.Is(err, resolver.ErrDependencyCycle),
		errors.Is(err, graph.ErrNamespaceNotLoaded):
		kind = KindDependency
	case errors.Is(err, graph.ErrUnresolvedNode),
		errors.Is(err, profile.ErrUnresolvedReference),
		errors.Is(err, profile.ErrUnresolvedDataType),
		errors.Is(err, profile.ErrUnknownNodeKind),
		errors.Is(err, export.ErrUnknownItemKind):
		kind = KindResolution
	case errors.Is(err, graph.ErrModelMismatch),
		errors.Is(err, export.ErrNothingToExport),
		errors.Is(err, export.ErrNoNamespace):
		kind = KindValidation
	case errors.Is(err, export.ErrNoCache):
		kind = KindConfiguration
	}

	result := &DesignerError{Op: op, Kind: kind, Err: err}
	var missing *resolver.MissingDependencyError
	if errors.As(err, &missing) {
		names := make([]string, len(missing.Missing))
		for i, m := range missing.Missing {
			names[i] = m.String()
		}
		result.Context = map[string]any{"missing": names}
	}
	return result
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer designer.CloseWithLog(st, logger, "profile store")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
