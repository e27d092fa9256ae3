package export

import (
	"context"
	"fmt"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// exportCore writes the newest cached core document.
func (e *Exporter) exportCore(ctx context.Context) ([]byte, error) {
	if e.cache == nil {
		return nil, ErrNoCache
	}
	res := model.NewImportResult()
	found, err := e.cache.LoadIdentity(ctx, res, model.ModelIdentity{ModelURI: nodeset.CoreNamespace}, model.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("load core model: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", cache.ErrNotCached, nodeset.CoreNamespace)
	}
	return ExportCached(ctx, e.cache, res.Find(nodeset.CoreNamespace))
}

// ExportCached re-serializes a cached document. Self-closing <Value/>
// elements are marked nil before decoding; written as-is they would come
// back as empty values.
func ExportCached(ctx context.Context, c cache.Cache, mv *model.ModelValue) ([]byte, error) {
	raw, err := c.RawXML(ctx, mv)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mv.Identity.ModelURI, err)
	}
	set, err := nodeset.Parse(nodeset.PatchEmptyValues([]byte(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", mv.Identity.ModelURI, err)
	}
	return nodeset.Marshal(set)
}
