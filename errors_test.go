package designer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/resolver"
)

// TestDesignerError_Error verifies the Error() method formatting.
func TestDesignerError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DesignerError
		want string
	}{
		{
			name: "with underlying error",
			err:  &DesignerError{Op: "Designer.Import", Kind: KindParse, Err: nodeset.ErrParse},
			want: "designer: Designer.Import (parse): nodeset: malformed document",
		},
		{
			name: "without underlying error",
			err:  &DesignerError{Op: "Designer.Export", Kind: KindInternal},
			want: "designer: Designer.Export: internal",
		},
		{
			name: "with context",
			err: &DesignerError{
				Op:      "Designer.Import",
				Kind:    KindStorage,
				Err:     errors.New("disk full"),
				Context: map[string]any{"namespace": "urn:a"},
			},
			want: "designer: Designer.Import (storage): disk full [context: map[namespace:urn:a]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDesignerError_Is verifies kind matching and delegation.
func TestDesignerError_Is(t *testing.T) {
	err := NewDependencyError("Designer.Import", resolver.ErrDependencyCycle)

	if !errors.Is(err, resolver.ErrDependencyCycle) {
		t.Error("expected match on underlying sentinel")
	}
	if !errors.Is(err, &DesignerError{Kind: KindDependency}) {
		t.Error("expected match on kind")
	}
	if !errors.Is(err, &DesignerError{Kind: KindDependency, Op: "Designer.Import"}) {
		t.Error("expected match on kind and op")
	}
	if errors.Is(err, &DesignerError{Kind: KindDependency, Op: "Designer.Export"}) {
		t.Error("unexpected match on different op")
	}
	if errors.Is(err, &DesignerError{Kind: KindParse}) {
		t.Error("unexpected match on different kind")
	}
	if err.Is(nil) {
		t.Error("unexpected match on nil")
	}

	wrapped := fmt.Errorf("cli: %w", err)
	var derr *DesignerError
	if !errors.As(wrapped, &derr) || derr.Kind != KindDependency {
		t.Errorf("errors.As through wrapping failed: %v", derr)
	}
}

// TestDesignerError_WithContext verifies that the original is not modified.
func TestDesignerError_WithContext(t *testing.T) {
	original := NewStorageError("Designer.Import", errors.New("locked")).WithContext(map[string]any{"a": 1})
	extended := original.WithContext(map[string]any{"b": 2})

	if len(original.Context) != 1 {
		t.Errorf("original context modified: %v", original.Context)
	}
	if extended.Context["a"] != 1 || extended.Context["b"] != 2 {
		t.Errorf("extended context = %v", extended.Context)
	}
	if extended.Kind != KindStorage || extended.Op != "Designer.Import" {
		t.Errorf("extended lost fields: %+v", extended)
	}
}

// TestConstructors verifies each constructor sets its kind.
func TestConstructors(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		err  *DesignerError
		kind string
	}{
		{NewParseError("op", base), KindParse},
		{NewDependencyError("op", base), KindDependency},
		{NewResolutionError("op", base), KindResolution},
		{NewValidationError("op", base), KindValidation},
		{NewStorageError("op", base), KindStorage},
		{NewConfigurationError("op", base), KindConfiguration},
		{NewInternalError("op", base), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if !errors.Is(tt.err, base) {
				t.Error("underlying error lost")
			}
		})
	}
}

// TestClassify verifies that package sentinels map to error kinds.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"parse", fmt.Errorf("load payload 0: %w", nodeset.ErrParse), KindParse},
		{"no model", nodeset.ErrNoModel, KindParse},
		{"already imported", resolver.ErrAlreadyImported, KindDependency},
		{"namespace not loaded", fmt.Errorf("x: %w", graph.ErrNamespaceNotLoaded), KindDependency},
		{"unresolved node", graph.ErrUnresolvedNode, KindResolution},
		{"unresolved data type", profile.ErrUnresolvedDataType, KindResolution},
		{"mismatch", graph.ErrModelMismatch, KindValidation},
		{"no namespace", export.ErrNoNamespace, KindValidation},
		{"unknown", errors.New("connection reset"), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err, KindStorage)
			if got.Kind != tt.want {
				t.Errorf("classify() kind = %q, want %q", got.Kind, tt.want)
			}
		})
	}
}

func TestClassify_MissingModels(t *testing.T) {
	missing := &resolver.MissingDependencyError{Missing: []model.ModelIdentity{{ModelURI: "urn:a", Version: "1.0"}}}
	got := classify("Designer.Import", missing, KindStorage)

	if got.Kind != KindDependency {
		t.Fatalf("kind = %q, want %q", got.Kind, KindDependency)
	}
	names, ok := got.Context["missing"].([]string)
	if !ok || len(names) != 1 || !strings.HasPrefix(names[0], "urn:a (Version: 1.0") {
		t.Errorf("missing context = %v", got.Context["missing"])
	}
}

func TestClassify_KeepsDesignerError(t *testing.T) {
	inner := NewConfigurationError("designer.New", ErrNoCache)
	if got := classify("op", fmt.Errorf("wrap: %w", inner), KindStorage); got != inner {
		t.Errorf("classify() = %v, want the wrapped DesignerError", got)
	}
}
