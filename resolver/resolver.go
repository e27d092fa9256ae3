// Package resolver loads a batch of NodeSet2 documents together with every
// model they require and orders the result so that each model follows the
// models it depends on.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/model"
)

// Sentinel errors returned by Resolve.
var (
	// ErrMissingDependency indicates required models that neither the batch
	// nor the cache could supply.
	ErrMissingDependency = errors.New("resolver: missing required models")

	// ErrAlreadyImported indicates a batch that introduced no new model.
	ErrAlreadyImported = errors.New("resolver: all models already imported")

	// ErrDependencyCycle indicates models that require each other.
	ErrDependencyCycle = errors.New("resolver: dependency cycle")
)

// MissingDependencyError lists the unresolved requirements.
type MissingDependencyError struct {
	Missing []model.ModelIdentity
}

// Error implements error.
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingDependency, model.FormatMissing(e.Missing))
}

// Unwrap returns ErrMissingDependency.
func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}

// Options configures a resolution.
type Options struct {
	// Scope is the tenant the batch is imported for.
	Scope cache.Scope

	// FailOnAlreadyImported rejects batches whose documents are all cached
	// at the same or a newer publication.
	FailOnAlreadyImported bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolve loads payloads through c, pulls every missing required model
// from c until nothing more can be found, and orders the loaded models
// leaves first.
//
// The returned result is non-nil whenever loading got past the payloads,
// so that callers can roll back the cache with c.DeleteNewlyAdded.
func Resolve(ctx context.Context, payloads [][]byte, c cache.Cache, opts Options) (*model.ImportResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := model.NewImportResult()
	anyNew := false
	for i, p := range payloads {
		wasNew, err := c.LoadBytes(ctx, res, p, opts.Scope)
		if err != nil {
			res.ErrorMessage = err.Error()
			return res, fmt.Errorf("load payload %d: %w", i, err)
		}
		anyNew = anyNew || wasNew
	}

	if opts.FailOnAlreadyImported && !anyNew {
		res.ErrorMessage = ErrAlreadyImported.Error()
		return res, ErrAlreadyImported
	}

	for {
		missing := missingModels(res)
		if len(missing) == 0 {
			break
		}

		progress := false
		for _, req := range missing {
			found, err := c.LoadIdentity(ctx, res, req, opts.Scope)
			if err != nil {
				res.ErrorMessage = err.Error()
				return res, fmt.Errorf("load %s: %w", req, err)
			}
			if found {
				logger.Debug("loaded required model from cache", "model", req.String())
				progress = true
			}
		}

		if !progress {
			res.MissingModels = missing
			res.ErrorMessage = model.FormatMissing(missing)
			logger.Warn("unresolved required models", "missing", res.ErrorMessage)
			return res, &MissingDependencyError{Missing: missing}
		}
	}

	ordered, err := Order(res.Models)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res, err
	}
	res.Models = ordered

	logger.Info("resolved models", "count", len(ordered), "new", anyNew)
	return res, nil
}

// missingModels returns the requirements not satisfied by a loaded model.
func missingModels(res *model.ImportResult) []model.ModelIdentity {
	var missing []model.ModelIdentity
	seen := make(map[string]bool)
	for _, mv := range res.Models {
		for _, req := range mv.RequiredModels {
			if res.Satisfied(req) || seen[req.Key()] {
				continue
			}
			seen[req.Key()] = true
			missing = append(missing, req)
		}
	}
	return missing
}

// Order sorts models so every model follows the models it requires.
// Among models whose requirements are met, fewer dependencies come first,
// then input order. Requirements outside the list are ignored.
func Order(models []*model.ModelValue) ([]*model.ModelValue, error) {
	index := make(map[string]int, len(models))
	for i, mv := range models {
		index[mv.Identity.ModelURI] = i
	}

	pending := make([]int, len(models))
	dependents := make([][]int, len(models))
	for i, mv := range models {
		for _, dep := range uniq(mv.Dependencies) {
			j, ok := index[dep]
			if !ok || j == i {
				continue
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	less := func(a, b int) bool {
		da, db := len(models[a].Dependencies), len(models[b].Dependencies)
		if da != db {
			return da < db
		}
		return a < b
	}

	var ready []int
	for i := range models {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]*model.ModelValue, 0, len(models))
	for len(ready) > 0 {
		sort.Slice(ready, func(x, y int) bool { return less(ready[x], ready[y]) })
		next := ready[0]
		ready = ready[1:]
		out = append(out, models[next])
		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(models) {
		var cyclic []string
		for i, n := range pending {
			if n > 0 {
				cyclic = append(cyclic, models[i].Identity.ModelURI)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrDependencyCycle, cyclic)
	}
	return out, nil
}

func uniq(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
