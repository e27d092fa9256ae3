package nodeset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gopcua/opcua/ua"
)

// ErrInvalidNodeID indicates a node id that cannot be parsed or expanded.
var ErrInvalidNodeID = errors.New("nodeset: invalid node id")

const expandedPrefix = "nsu="

// ExpandedID joins a namespace URI and a namespace-less identifier such as
// "i=5" or "s=Pump" into "nsu=<uri>;i=5".
func ExpandedID(uri, local string) string {
	return expandedPrefix + uri + ";" + local
}

// CoreID returns the expanded id of a numeric node in the core namespace.
func CoreID(n uint32) string {
	return ExpandedID(CoreNamespace, "i="+strconv.FormatUint(uint64(n), 10))
}

// SplitExpandedID splits an expanded id into its namespace URI and
// identifier part.
func SplitExpandedID(id string) (uri, local string, ok bool) {
	rest, found := strings.CutPrefix(id, expandedPrefix)
	if !found {
		return "", "", false
	}
	// The identifier always starts with "<type>=" and URIs never contain ";<t>=".
	for i := 0; i < len(rest); i++ {
		if rest[i] == ';' && i+2 < len(rest) && rest[i+2] == '=' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}

// NamespaceOf returns the namespace URI of an expanded id.
func NamespaceOf(id string) string {
	uri, _, _ := SplitExpandedID(id)
	return uri
}

// LocalPart returns the identifier part of an expanded id.
func LocalPart(id string) string {
	_, local, ok := SplitExpandedID(id)
	if !ok {
		return id
	}
	return local
}

// NumericID returns the numeric identifier of an expanded id, if it has one.
func NumericID(id string) (uint32, bool) {
	local := LocalPart(id)
	n, err := ua.ParseNodeID(local)
	if err != nil {
		return 0, false
	}
	switch n.Type() {
	case ua.NodeIDTypeTwoByte, ua.NodeIDTypeFourByte, ua.NodeIDTypeNumeric:
		return n.IntID(), true
	default:
		return 0, false
	}
}

// IsCore reports whether an expanded id is in the core namespace.
func IsCore(id string) bool {
	return NamespaceOf(id) == CoreNamespace
}

// NamespaceTable maps document-relative namespace indexes to URIs.
// Index 0 is always the core namespace.
type NamespaceTable []string

// NewNamespaceTable builds a table from a document's NamespaceUris.
func NewNamespaceTable(uris *UriTable) NamespaceTable {
	table := NamespaceTable{CoreNamespace}
	if uris != nil {
		table = append(table, uris.Uri...)
	}
	return table
}

// Index returns the index of a URI.
func (t NamespaceTable) Index(uri string) (int, bool) {
	for i, u := range t {
		if u == uri {
			return i, true
		}
	}
	return 0, false
}

// Add appends a URI if absent and returns its index.
func (t *NamespaceTable) Add(uri string) int {
	if i, ok := t.Index(uri); ok {
		return i
	}
	*t = append(*t, uri)
	return len(*t) - 1
}

// URIs returns the table without the core namespace, the form written to
// NamespaceUris.
func (t NamespaceTable) URIs() []string {
	if len(t) <= 1 {
		return nil
	}
	out := make([]string, len(t)-1)
	copy(out, t[1:])
	return out
}

// Expand converts a document-relative node id into an expanded id.
func (t NamespaceTable) Expand(nodeID string) (string, error) {
	nodeID = strings.TrimSpace(nodeID)
	if !hasIdentifierType(nodeID) {
		return "", fmt.Errorf("%w: %q: missing identifier type", ErrInvalidNodeID, nodeID)
	}
	n, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidNodeID, nodeID, err)
	}
	idx := int(n.Namespace())
	if idx >= len(t) {
		return "", fmt.Errorf("%w: %q: namespace index %d not in table", ErrInvalidNodeID, nodeID, idx)
	}
	return ExpandedID(t[idx], stripNamespace(n.String())), nil
}

// Localize converts an expanded id into a document-relative node id, adding
// its namespace to the table when missing.
func (t *NamespaceTable) Localize(id string) (string, error) {
	uri, local, ok := SplitExpandedID(id)
	if !ok {
		return "", fmt.Errorf("%w: %q is not an expanded id", ErrInvalidNodeID, id)
	}
	idx := t.Add(uri)
	if idx == 0 {
		return local, nil
	}
	return fmt.Sprintf("ns=%d;%s", idx, local), nil
}

// hasIdentifierType reports whether the identifier of a node id, after an
// optional "ns=<n>;", starts with one of i=, s=, g= or b=.
func hasIdentifierType(s string) bool {
	if rest, ok := strings.CutPrefix(s, "ns="); ok {
		if _, s, ok = strings.Cut(rest, ";"); !ok {
			return false
		}
	}
	if len(s) < 2 || s[1] != '=' {
		return false
	}
	switch s[0] {
	case 'i', 's', 'g', 'b':
		return true
	}
	return false
}

// stripNamespace removes a leading "ns=<n>;" from a node id string.
func stripNamespace(s string) string {
	if !strings.HasPrefix(s, "ns=") {
		return s
	}
	if _, rest, ok := strings.Cut(s, ";"); ok {
		return rest
	}
	return s
}

// ParseQualifiedName splits "1:Name" into its namespace index and name.
// Names without a numeric prefix are in namespace 0.
func ParseQualifiedName(s string) (int, string) {
	prefix, name, ok := strings.Cut(s, ":")
	if !ok {
		return 0, s
	}
	idx, err := strconv.Atoi(prefix)
	if err != nil || idx < 0 {
		return 0, s
	}
	return idx, name
}

// FormatQualifiedName renders a browse name for the given namespace index.
func FormatQualifiedName(idx int, name string) string {
	if idx == 0 {
		return name
	}
	return strconv.Itoa(idx) + ":" + name
}

// CompareLocalIDs orders identifier parts: numeric ids numerically and
// before other identifier types, the rest lexically.
func CompareLocalIDs(a, b string) int {
	na, aok := numericLocal(a)
	nb, bok := numericLocal(b)
	switch {
	case aok && bok:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(a, b)
}

func numericLocal(local string) (uint64, bool) {
	rest, ok := strings.CutPrefix(local, "i=")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	return n, err == nil
}
