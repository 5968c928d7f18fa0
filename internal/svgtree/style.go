package svgtree

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// ParseStyle parses the declarations of a style attribute. douceur only
// assigns a value once it sees the terminating semicolon, so the list is
// always closed with exactly one before parsing.
func ParseStyle(style string) ([]*css.Declaration, error) {
	style = strings.TrimRight(strings.TrimSpace(style), "; \t\r\n")
	if style == "" {
		return nil, nil
	}
	decls, err := parser.ParseDeclarations(style + ";")
	if err != nil {
		return nil, err
	}
	return decls, nil
}

// StyleValue returns the value of prop in a style attribute.
func StyleValue(style, prop string) (string, bool) {
	decls, err := ParseStyle(style)
	if err != nil {
		return "", false
	}
	for _, d := range decls {
		if strings.EqualFold(strings.TrimSpace(d.Property), prop) {
			return strings.TrimSpace(d.Value), true
		}
	}
	return "", false
}
