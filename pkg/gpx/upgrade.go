package gpx

import (
	"log/slog"

	"github.com/beevik/etree"
)

// convertFunc copies data from a 1.0 source element onto its freshly built
// 1.1 counterpart.
type convertFunc func(src, dst *etree.Element)

// schemaNode describes how one tag is carried from 1.0 to 1.1. Children are
// converted in slice order, which defines the output document order.
type schemaNode struct {
	Tag      string
	Convert  convertFunc
	Children []schemaNode
}

func copyText(src, dst *etree.Element) {
	dst.SetText(src.Text())
}

func copyAttrs(src, dst *etree.Element) {
	for _, a := range src.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		dst.CreateAttr(a.FullKey(), a.Value)
	}
}

// trackSchema covers trk/trkseg/trkpt/{time,fix,sat}. Everything else is
// dropped by the upgrade.
var trackSchema = []schemaNode{
	{
		Tag: "trk",
		Children: []schemaNode{
			{
				Tag: "trkseg",
				Children: []schemaNode{
					{
						Tag:     "trkpt",
						Convert: copyAttrs,
						Children: []schemaNode{
							{Tag: "time", Convert: copyText},
							{Tag: "fix", Convert: copyText},
							{Tag: "sat", Convert: copyText},
						},
					},
				},
			},
		},
	},
}

// Upgrade rebuilds the track structure of a GPX 1.0 document as a new 1.1
// document. Documents already declaring version 1.1 are returned as is.
func Upgrade(doc *etree.Document) *etree.Document {
	if !NeedsUpgrade(doc) {
		return doc
	}

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := out.CreateElement("gpx")
	root.CreateAttr("xmlns", NamespaceGPX11)
	root.CreateAttr("version", Version11)

	if src := doc.Root(); src != nil {
		// prefixed trkpt attributes keep their prefix
		copyNamespaces(root, src)
		convert(trackSchema, src, root)
	}
	slog.Debug("upgraded gpx", "from", Version(doc), "points", len(descendants(root, NamespaceGPX11, "trkpt")))
	return out
}

func convert(nodes []schemaNode, src, dst *etree.Element) {
	for _, node := range nodes {
		for _, s := range descendants(src, NamespaceGPX10, node.Tag) {
			d := etree.NewElement(node.Tag)
			if node.Convert != nil {
				node.Convert(s, d)
			}
			convert(node.Children, s, d)
			dst.AddChild(d)
		}
	}
}
