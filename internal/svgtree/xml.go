package svgtree

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	nsXlink = "http://www.w3.org/1999/xlink"
	nsXML   = "http://www.w3.org/XML/1998/namespace"
)

var errNoRoot = errors.New("svgtree: no root element")

// Parse reads an XML document and returns its root element as a tree.
// Comments, processing instructions and directives are dropped.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel

	var root *Node
	var stack []*Node
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse svg: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Tag: t.Name.Local}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse svg: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			if len(top.Children) > 0 {
				// Tail text after a child element is not modelled.
				continue
			}
			if s := string(t); strings.TrimSpace(s) != "" {
				top.Text += s
			}
		}
	}
	if root == nil {
		return nil, errNoRoot
	}
	return root, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

func attrName(name xml.Name) string {
	switch name.Space {
	case "":
		return name.Local
	case "xmlns":
		return "xmlns:" + name.Local
	case nsXlink, "xlink":
		return "xlink:" + name.Local
	case nsXML, "xml":
		return "xml:" + name.Local
	default:
		return name.Local
	}
}

// Encode writes the tree rooted at n as XML.
func Encode(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	if err := encodeNode(bw, n); err != nil {
		return err
	}
	return bw.Flush()
}

// Marshal returns the XML serialization of the tree rooted at n.
func Marshal(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String serializes n, returning "" if encoding fails.
func (n *Node) String() string {
	b, err := Marshal(n)
	if err != nil {
		return ""
	}
	return string(b)
}

func encodeNode(w *bufio.Writer, n *Node) error {
	if n.Tag == "" {
		return fmt.Errorf("encode svg: element without tag")
	}
	w.WriteByte('<')
	w.WriteString(n.Tag)
	for _, a := range n.Attrs {
		w.WriteByte(' ')
		w.WriteString(a.Name)
		w.WriteString(`="`)
		if err := xml.EscapeText(w, []byte(a.Value)); err != nil {
			return err
		}
		w.WriteByte('"')
	}
	if n.Text == "" && len(n.Children) == 0 {
		_, err := w.WriteString("/>")
		return err
	}
	w.WriteByte('>')
	if n.Text != "" {
		if err := xml.EscapeText(w, []byte(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encodeNode(w, c); err != nil {
			return err
		}
	}
	w.WriteString("</")
	w.WriteString(n.Tag)
	_, err := w.WriteString(">")
	return err
}
