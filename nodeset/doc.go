// Package nodeset reads and writes OPC UA NodeSet2 XML documents.
//
// A NodeSet2 document carries a namespace table, a model table, an alias
// table and a flat list of typed nodes. UANodeSet keeps the nodes in document
// order so importers can reproduce the author's ordering, and Marshal writes
// them back in the order they are held.
//
// Node ids inside a document are relative to the document's namespace table
// ("ns=1;i=1000"). The rest of the module works with expanded ids that name
// the namespace URI directly ("nsu=http://example.org/;i=1000"); NamespaceTable
// converts between the two forms.
//
// Example:
//
//	set, err := nodeset.Parse(data)
//	if err != nil {
//	    return err
//	}
//	table := nodeset.NewNamespaceTable(set.NamespaceUris)
//	id, err := table.Expand(set.Items[0].Base().NodeIdAttr)
package nodeset
