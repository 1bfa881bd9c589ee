package scripts

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

const mediaTypeJS = "application/javascript"

// JSMinifier minifies JavaScript with tdewolff/minify
type JSMinifier struct {
	m *minify.M
}

// NewJSMinifier creates a JavaScript minifier
func NewJSMinifier() *JSMinifier {
	m := minify.New()
	m.AddFunc(mediaTypeJS, js.Minify)
	return &JSMinifier{m: m}
}

// Minify implements interfaces.Minifier
func (j *JSMinifier) Minify(src []byte) ([]byte, error) {
	return j.m.Bytes(mediaTypeJS, src)
}
