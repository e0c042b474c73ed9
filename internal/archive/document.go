package archive

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Node is one element of the parsed XML tree.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []Node     `xml:",any"`
	Chardata string     `xml:",chardata"`
}

// Document is the parsed primary XML member of a package.
type Document struct {
	Root Node
}

// ParseDocument decodes an XML stream into a queryable tree. Latin-1 encoded
// documents are transparently transcoded.
func ParseDocument(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "iso-8859-1", "latin1", "windows-1252":
			return charmap.ISO8859_1.NewDecoder().Reader(input), nil
		}
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}

	var root Node
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	return &Document{Root: root}, nil
}

// First returns the first descendant element with the given local name, or
// nil when absent. The search is depth-first in document order.
func (d *Document) First(name string) *Node {
	return d.Root.First(name)
}

// All returns every descendant element with the given local name in document
// order.
func (d *Document) All(name string) []*Node {
	return d.Root.All(name)
}

// First returns the first descendant with the given local name, including
// the node itself.
func (n *Node) First(name string) *Node {
	if n == nil {
		return nil
	}
	if n.XMLName.Local == name {
		return n
	}
	for idx := range n.Children {
		if found := n.Children[idx].First(name); found != nil {
			return found
		}
	}
	return nil
}

// All collects descendants with the given local name, including the node
// itself.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var found []*Node
	if n.XMLName.Local == name {
		found = append(found, n)
	}
	for idx := range n.Children {
		found = append(found, n.Children[idx].All(name)...)
	}
	return found
}

// Attr returns the value of the named attribute, empty when absent.
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	for _, attr := range n.Attrs {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// Text returns the node's deep text content with whitespace collapsed.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	var builder strings.Builder
	n.writeText(&builder)
	return strings.Join(strings.Fields(builder.String()), " ")
}

func (n *Node) writeText(builder *strings.Builder) {
	builder.WriteString(n.Chardata)
	builder.WriteByte(' ')
	for idx := range n.Children {
		n.Children[idx].writeText(builder)
	}
}

// ChildText returns the deep text of the first descendant with the given
// name, empty when absent.
func (n *Node) ChildText(name string) string {
	return n.First(name).Text()
}
