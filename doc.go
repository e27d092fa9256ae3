// Package designer imports OPC UA NodeSet2 information models into a
// profile store and exports them back to NodeSet2 XML.
//
// # Import
//
// An import runs as one transaction:
//
//  1. Every document is loaded through the nodeset cache, together with
//     the models it requires, until nothing more can be found.
//  2. The models are ordered so that each follows the models it depends on.
//  3. Each model is turned into a typed node graph and projected into
//     profile items in the store.
//  4. The cache is flushed and the models are published to the shared
//     registry, if one is configured.
//
// A failed import removes the documents it added to the cache again.
//
//	fb, err := cache.NewFileBackend("./cache")
//	if err != nil {
//		log.Fatal(err)
//	}
//	d, err := designer.New(
//		designer.WithCache(cache.New(fb)),
//		designer.WithTenant("acme"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := d.Import(ctx, [][]byte{data})
//
// # Export
//
// Export reads the items of a namespace from the store and writes them as a
// NodeSet2 document whose namespace table starts with the core namespace,
// followed by the exported namespace and every other namespace it
// references:
//
//	xml, err := d.Export(ctx, export.Request{Namespace: "http://example.org/Pumps/"})
//
// # Errors
//
// Errors returned by Import and Export are *DesignerError values whose Kind
// names the failing stage:
//
//	var derr *designer.DesignerError
//	if errors.As(err, &derr) && derr.Kind == designer.KindDependency {
//		// more models are needed
//	}
//
// # Observability
//
// Imports and exports emit OpenTelemetry spans and import metrics through
// the providers set with WithTracerProvider and WithMeterProvider, or the
// global providers otherwise.
package designer
