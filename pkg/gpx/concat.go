package gpx

import (
	"fmt"
	"log/slog"

	"github.com/beevik/etree"
)

// Concatenate appends every track segment of others to the first track of
// base, in argument order and then document order. Segments are moved out of
// the other documents, which must not be used afterwards. No time continuity
// is checked and nothing is reordered.
func Concatenate(base *etree.Document, others ...*etree.Document) (*etree.Document, error) {
	root := base.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: base document has no root element", ErrStructure)
	}
	trks := descendants(root, NamespaceGPX11, "trk")
	if len(trks) == 0 {
		return nil, fmt.Errorf("%w: base document has no trk element", ErrStructure)
	}
	trk := trks[0]

	for i, other := range others {
		otherRoot := other.Root()
		if otherRoot == nil {
			continue
		}
		copyNamespaces(root, otherRoot)

		segs := descendants(otherRoot, NamespaceGPX11, "trkseg")
		for _, seg := range segs {
			trk.AddChild(seg)
		}
		slog.Debug("appended track segments", "document", i+1, "segments", len(segs))
	}
	return base, nil
}
