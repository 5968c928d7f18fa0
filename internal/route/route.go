// Package route decides how an uploaded file reaches the drawing surface:
// PDFs go through the degradation ladder, SVG and raster images bypass it.
package route

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dgallion1/inkport/internal/svgtree"
)

// Kind is the import path a file takes.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindPDF     Kind = "pdf"
	KindSVG     Kind = "svg"
	KindRaster  Kind = "raster"
)

// Source is the result of Detect.
type Source struct {
	Kind Kind   `json:"kind"`
	MIME string `json:"mime,omitempty"`
	Ext  string `json:"ext,omitempty"`
}

// SupportedExtensions lists file extensions this service can import.
var SupportedExtensions = map[string]Kind{
	".pdf":  KindPDF,
	".svg":  KindSVG,
	".png":  KindRaster,
	".jpg":  KindRaster,
	".jpeg": KindRaster,
	".gif":  KindRaster,
	".bmp":  KindRaster,
	".tif":  KindRaster,
	".tiff": KindRaster,
	".webp": KindRaster,
}

// rasterTypes are the sniffed extensions image.DecodeConfig can size.
var rasterTypes = map[string]bool{
	"png": true, "jpg": true, "gif": true, "bmp": true, "tif": true, "webp": true,
}

// Detect classifies data by its content, falling back to the filename
// extension only for SVG, which has no magic number.
func Detect(data []byte, filename string) Source {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		switch {
		case kind.Extension == "pdf":
			return Source{Kind: KindPDF, MIME: kind.MIME.Value, Ext: kind.Extension}
		case rasterTypes[kind.Extension]:
			return Source{Kind: KindRaster, MIME: kind.MIME.Value, Ext: kind.Extension}
		}
		return Source{Kind: KindUnknown, MIME: kind.MIME.Value, Ext: kind.Extension}
	}
	if looksLikeSVG(data) {
		return Source{Kind: KindSVG, MIME: "image/svg+xml", Ext: "svg"}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if SupportedExtensions[ext] == KindSVG && bytes.Contains(data, []byte("<svg")) {
		return Source{Kind: KindSVG, MIME: "image/svg+xml", Ext: "svg"}
	}
	return Source{Kind: KindUnknown}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// looksLikeSVG reports whether the first element of an XML document is svg.
func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	for {
		head = bytes.TrimLeft(head, " \t\r\n")
		switch {
		case bytes.HasPrefix(head, []byte("<?")):
			i := bytes.Index(head, []byte("?>"))
			if i < 0 {
				return false
			}
			head = head[i+2:]
		case bytes.HasPrefix(head, []byte("<!--")):
			i := bytes.Index(head, []byte("-->"))
			if i < 0 {
				return false
			}
			head = head[i+3:]
		case bytes.HasPrefix(head, []byte("<!")):
			i := bytes.IndexByte(head, '>')
			if i < 0 {
				return false
			}
			head = head[i+1:]
		default:
			return bytes.HasPrefix(head, []byte("<svg")) &&
				len(head) > 4 && strings.ContainsRune(" \t\r\n>/", rune(head[4]))
		}
	}
}

// SVGTree parses an SVG document for direct commit and returns the
// viewport its root declares.
func SVGTree(data []byte) (*svgtree.Node, svgtree.Viewport, error) {
	tree, err := svgtree.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, svgtree.Viewport{}, fmt.Errorf("parse svg: %w", err)
	}
	if tree.Tag != "svg" {
		return nil, svgtree.Viewport{}, fmt.Errorf("parse svg: root element is <%s>", tree.Tag)
	}
	return tree, SVGViewport(tree), nil
}

// Browsers size an svg without width, height or viewBox at 300x150.
var defaultSVGViewport = svgtree.Viewport{Width: 300, Height: 150}

// SVGViewport reads the natural size of an svg root from its width and
// height, then its viewBox.
func SVGViewport(root *svgtree.Node) svgtree.Viewport {
	w, wok := parseLength(root.Attr("width"))
	h, hok := parseLength(root.Attr("height"))
	if wok && hok {
		return svgtree.Viewport{Width: w, Height: h}
	}
	if vb := strings.Fields(strings.ReplaceAll(root.Attr("viewBox"), ",", " ")); len(vb) == 4 {
		vw, err1 := strconv.ParseFloat(vb[2], 64)
		vh, err2 := strconv.ParseFloat(vb[3], 64)
		if err1 == nil && err2 == nil && vw > 0 && vh > 0 {
			return svgtree.Viewport{Width: vw, Height: vh}
		}
	}
	return defaultSVGViewport
}

// parseLength accepts plain numbers and px/pt lengths.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "px"):
		s = strings.TrimSuffix(s, "px")
	case strings.HasSuffix(s, "pt"):
		s = strings.TrimSuffix(s, "pt")
		scale = 4.0 / 3.0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * scale, true
}

// RasterTree wraps raster bytes in an svg with a single image element
// sized from the image header. Pixels are never decoded.
func RasterTree(data []byte, src Source) (*svgtree.Node, svgtree.Viewport, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, svgtree.Viewport{}, fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, svgtree.Viewport{}, fmt.Errorf("image has no area (%dx%d)", cfg.Width, cfg.Height)
	}
	mime := src.MIME
	if mime == "" {
		mime = "image/" + format
	}

	vp := svgtree.Viewport{Width: float64(cfg.Width), Height: float64(cfg.Height)}
	w, h := strconv.Itoa(cfg.Width), strconv.Itoa(cfg.Height)
	tree := svgtree.New("svg",
		svgtree.Attr{Name: "xmlns", Value: "http://www.w3.org/2000/svg"},
		svgtree.Attr{Name: "viewBox", Value: "0 0 " + w + " " + h},
		svgtree.Attr{Name: "width", Value: w},
		svgtree.Attr{Name: "height", Value: h},
	).Append(svgtree.New("image",
		svgtree.Attr{Name: "x", Value: "0"},
		svgtree.Attr{Name: "y", Value: "0"},
		svgtree.Attr{Name: "width", Value: w},
		svgtree.Attr{Name: "height", Value: h},
		svgtree.Attr{Name: "href", Value: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)},
	))
	return tree, vp, nil
}
