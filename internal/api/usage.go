package api

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed usage.md
var usageMarkdown []byte

const usageHead = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>inkport</title>
<style>body{font:15px/1.5 sans-serif;max-width:48em;margin:2em auto;padding:0 1em}
code,pre{background:#f4f4f4}pre{padding:.6em;overflow:auto}
table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.2em .5em}</style>
</head><body>
`

func renderUsage() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	buf.WriteString(usageHead)
	if err := md.Convert(usageMarkdown, &buf); err != nil {
		return nil, fmt.Errorf("render usage: %w", err)
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(usageMarkdown)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.usage)
}
