package normalize

import (
	"strings"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// paintProperties are the style declarations lifted into presentation
// attributes before paint repair.
var paintProperties = map[string]bool{
	"fill":           true,
	"stroke":         true,
	"stroke-width":   true,
	"fill-opacity":   true,
	"stroke-opacity": true,
	"clip-path":      true,
}

// foldStyle moves paint declarations from the style attribute onto the
// node's attributes. A style declaration overrides the attribute. The
// style attribute is rewritten only when something was lifted out of it.
func foldStyle(n *svgtree.Node) {
	style, ok := n.Get("style")
	if !ok {
		return
	}
	decls, err := svgtree.ParseStyle(style)
	if err != nil {
		return
	}

	var rest []string
	lifted := false
	for _, d := range decls {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		if paintProperties[prop] {
			n.Set(prop, strings.TrimSpace(d.Value))
			lifted = true
			continue
		}
		rest = append(rest, prop+":"+strings.TrimSpace(d.Value))
	}
	if !lifted {
		return
	}
	if len(rest) == 0 {
		n.Del("style")
		return
	}
	n.Set("style", strings.Join(rest, ";"))
}
