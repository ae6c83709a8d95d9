// Package render defines the structured layout tree and the backend
// contract shared by the browser and tree-to-raster renderers.
//
// A tree is built from three node kinds. Containers lay their children out
// in a row or column; text nodes wrap their text to the available width;
// image nodes draw a picture scaled into their box.
//
//	root := render.Container(render.Style{Width: 1080, Height: 1080, Background: "#1f2937"},
//	    render.Text(render.Style{FontSize: 48, Color: "#ffffff"}, "Hello"),
//	)
package render

// Kind tags a Node variant.
type Kind string

const (
	KindContainer Kind = "container"
	KindText      Kind = "text"
	KindImage     Kind = "image"
)

// Node is one element of the layout tree. Text is only read for KindText,
// Src only for KindImage and Children only for KindContainer.
type Node struct {
	Kind     Kind    `json:"kind" yaml:"kind"`
	Style    Style   `json:"style" yaml:"style"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
	Src      string  `json:"src,omitempty" yaml:"src,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Container returns a container node. Nil children are dropped.
func Container(style Style, children ...*Node) *Node {
	kept := make([]*Node, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &Node{Kind: KindContainer, Style: style, Children: kept}
}

// Text returns a text node.
func Text(style Style, text string) *Node {
	return &Node{Kind: KindText, Style: style, Text: text}
}

// Image returns an image node. src is an http(s) or data: URL.
func Image(style Style, src string) *Node {
	return &Node{Kind: KindImage, Style: style, Src: src}
}

// Walk visits n and its descendants depth-first in paint order. Returning
// false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// ImageSources lists the distinct image sources in the tree.
func ImageSources(root *Node) []string {
	var srcs []string
	seen := map[string]bool{}
	Walk(root, func(n *Node) bool {
		if n.Kind == KindImage && n.Src != "" && !seen[n.Src] {
			seen[n.Src] = true
			srcs = append(srcs, n.Src)
		}
		return true
	})
	return srcs
}
