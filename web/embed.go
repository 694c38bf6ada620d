// Package web holds the dashboard's templates and static assets, compiled
// into the server binary.
package web

import "embed"

// TemplatesFS holds the page and htmx partial templates. Each file defines
// its templates by name; the server parses them all into one set.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds app.css and app.js, served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
