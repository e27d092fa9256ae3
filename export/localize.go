package export

import (
	"sort"
	"strings"

	"github.com/cesmii/profiledesigner/nodeset"
)

// idVisitor is called for every node id field of a wire node. dataType
// marks fields that may be written as an alias.
type idVisitor func(id *string, dataType bool) error

func eachID(n nodeset.Node, visit idVisitor) error {
	fields := []struct {
		id       *string
		dataType bool
	}{{id: &n.Base().NodeIdAttr}}

	if refs := n.Base().References; refs != nil {
		for _, r := range refs.Reference {
			fields = append(fields, struct {
				id       *string
				dataType bool
			}{id: &r.Value})
			if strings.HasPrefix(r.ReferenceTypeAttr, "nsu=") {
				fields = append(fields, struct {
					id       *string
					dataType bool
				}{id: &r.ReferenceTypeAttr})
			}
		}
	}

	add := func(id *string, dataType bool) {
		fields = append(fields, struct {
			id       *string
			dataType bool
		}{id: id, dataType: dataType})
	}
	switch w := n.(type) {
	case *nodeset.UAObject:
		add(&w.ParentNodeIdAttr, false)
	case *nodeset.UAVariable:
		add(&w.ParentNodeIdAttr, false)
		add(&w.DataTypeAttr, true)
	case *nodeset.UAMethod:
		add(&w.ParentNodeIdAttr, false)
		add(&w.MethodDeclarationIdAttr, false)
	case *nodeset.UAVariableType:
		add(&w.DataTypeAttr, true)
	case *nodeset.UADataType:
		if w.Definition != nil {
			for _, f := range w.Definition.Field {
				add(&f.DataTypeAttr, true)
			}
		}
	}

	for _, f := range fields {
		if *f.id == "" {
			continue
		}
		if err := visit(f.id, f.dataType); err != nil {
			return err
		}
	}
	return nil
}

// touchedNamespaces returns every namespace referenced by the built nodes.
func (b *builder) touchedNamespaces() []string {
	seen := make(map[string]bool)
	var out []string
	touch := func(uri string) {
		if uri != "" && !seen[uri] {
			seen[uri] = true
			out = append(out, uri)
		}
	}
	for id, n := range b.nodes {
		touch(b.browseNS[id])
		_ = eachID(n, func(id *string, _ bool) error {
			touch(nodeset.NamespaceOf(*id))
			return nil
		})
	}
	sort.Strings(out)
	return out
}

// localize assigns document-relative ids, qualified browse names and
// aliases, and returns the nodes sorted by namespace index then id.
func (b *builder) localize(table nodeset.NamespaceTable) ([]nodeset.Node, *nodeset.AliasTable, error) {
	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, _ := table.Index(nodeset.NamespaceOf(ids[i]))
		nj, _ := table.Index(nodeset.NamespaceOf(ids[j]))
		if ni != nj {
			return ni < nj
		}
		return nodeset.CompareLocalIDs(nodeset.LocalPart(ids[i]), nodeset.LocalPart(ids[j])) < 0
	})

	reverse := nodeset.ReverseAliases(nodeset.DefaultAliases())
	used := make(map[string]string)

	out := make([]nodeset.Node, 0, len(ids))
	for _, id := range ids {
		n := b.nodes[id]
		base := n.Base()

		idx, _ := table.Index(b.browseNS[id])
		base.BrowseNameAttr = nodeset.FormatQualifiedName(idx, base.BrowseNameAttr)
		if dt, ok := n.(*nodeset.UADataType); ok && dt.Definition != nil {
			dt.Definition.NameAttr = nodeset.FormatQualifiedName(idx, dt.Definition.NameAttr)
		}

		err := eachID(n, func(field *string, dataType bool) error {
			if dataType {
				if name, ok := reverse[*field]; ok {
					used[name] = nodeset.LocalPart(*field)
					*field = name
					return nil
				}
			}
			local, err := table.Localize(*field)
			if err != nil {
				return err
			}
			*field = local
			return nil
		})
		if err != nil {
			return nil, nil, err
		}

		if base.References != nil {
			for _, r := range base.References.Reference {
				if refID, ok := nodeset.ReferenceTypes[r.ReferenceTypeAttr]; ok {
					used[r.ReferenceTypeAttr] = nodeset.LocalPart(nodeset.CoreID(refID))
				}
			}
		}
		out = append(out, n)
	}

	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)
	aliases := &nodeset.AliasTable{}
	for _, name := range names {
		aliases.Alias = append(aliases.Alias, &nodeset.NodeIdAlias{AliasAttr: name, Value: used[name]})
	}
	return out, aliases, nil
}
