// Package gpx manipulates GPX track documents: upgrading the 1.0 dialect to
// 1.1, merging heart-rate samples into track points and concatenating tracks.
//
// Documents are held as element trees so that elements the package does not
// know about survive a read/merge/write cycle of a 1.1 file untouched.
package gpx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/ilardm/strvup/pkg/atomicfile"
)

const (
	NamespaceGPX10  = "http://www.topografix.com/GPX/1/0"
	NamespaceGPX11  = "http://www.topografix.com/GPX/1/1"
	NamespaceGPXTPX = "http://www.garmin.com/xmlschemas/TrackPointExtension/v1"

	Version11 = "1.1"
)

var (
	// ErrFormat is returned for values that cannot be parsed, e.g. timestamps.
	ErrFormat = errors.New("malformed gpx value")
	// ErrStructure is returned when an expected element is missing.
	ErrStructure = errors.New("unexpected gpx structure")
	// ErrAlignment is returned when a track point falls outside the heart-rate recording.
	ErrAlignment = errors.New("track point outside heart-rate recording")
)

// ReadFile parses the GPX document at path.
func ReadFile(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("error reading gpx %s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", ErrStructure, path)
	}
	return doc, nil
}

// WriteFile serializes doc to path with an XML declaration. The target is only
// replaced once the whole document has been written.
func WriteFile(doc *etree.Document, path string) error {
	if !hasDeclaration(doc) {
		doc.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="UTF-8"`))
	}

	return atomicfile.Write(path, 0o644, func(w io.Writer) error {
		if _, err := doc.WriteTo(w); err != nil {
			return fmt.Errorf("error writing gpx: %w", err)
		}
		return nil
	})
}

// Version returns the declared version of the document, defaulting to 1.0.
func Version(doc *etree.Document) string {
	root := doc.Root()
	if root == nil {
		return "1.0"
	}
	return root.SelectAttrValue("version", "1.0")
}

// NeedsUpgrade reports whether doc is not yet in the 1.1 dialect.
func NeedsUpgrade(doc *etree.Document) bool {
	return Version(doc) != Version11
}

// Finalize stamps the root element with the creator and the 1.1 version.
func Finalize(doc *etree.Document, creator string) {
	root := doc.Root()
	if root == nil {
		return
	}
	root.CreateAttr("creator", creator)
	root.CreateAttr("version", Version11)
}

func hasDeclaration(doc *etree.Document) bool {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			return true
		}
	}
	return false
}

// namespaceOf resolves the namespace URI of e from the xmlns declarations of
// e and its ancestors.
func namespaceOf(e *etree.Element) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if e.Space == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if e.Space != "" && a.Space == "xmlns" && a.Key == e.Space {
				return a.Value
			}
		}
	}
	return ""
}

// matches reports whether e is the element ns:tag. Elements without any
// namespace are accepted as well, many tools omit the declaration.
func matches(e *etree.Element, ns, tag string) bool {
	if e.Tag != tag {
		return false
	}
	got := namespaceOf(e)
	return got == ns || got == ""
}

// descendants returns every element below e named ns:tag in document order.
func descendants(e *etree.Element, ns, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range e.ChildElements() {
		if matches(child, ns, tag) {
			out = append(out, child)
		}
		out = append(out, descendants(child, ns, tag)...)
	}
	return out
}

// child returns the first direct child of e named ns:tag.
func child(e *etree.Element, ns, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if matches(c, ns, tag) {
			return c
		}
	}
	return nil
}

// qualify builds a tag in the same prefix space as a sibling element.
func qualify(space, tag string) string {
	if space == "" {
		return tag
	}
	return space + ":" + tag
}

// bindNamespace returns the prefix bound to uri on root, declaring it with
// the preferred prefix when absent.
func bindNamespace(root *etree.Element, uri, preferred string) string {
	taken := make(map[string]bool)
	for _, a := range root.Attr {
		if a.Space != "xmlns" {
			continue
		}
		if a.Value == uri {
			return a.Key
		}
		taken[a.Key] = true
	}

	prefix := preferred
	for i := 1; taken[prefix]; i++ {
		prefix = fmt.Sprintf("%s%d", preferred, i)
	}
	root.CreateAttr("xmlns:"+prefix, uri)
	return prefix
}

// copyNamespaces declares on dst every prefixed namespace of src that dst does
// not declare yet.
func copyNamespaces(dst, src *etree.Element) {
	for _, a := range src.Attr {
		if a.Space != "xmlns" || strings.TrimSpace(a.Value) == "" {
			continue
		}
		if dst.SelectAttr("xmlns:"+a.Key) == nil {
			dst.CreateAttr("xmlns:"+a.Key, a.Value)
		}
	}
}
