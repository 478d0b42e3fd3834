// Package quizui provides embedded page templates for the web front.
package quizui

import "embed"

// TemplateFS holds the page templates. In dev mode they are read from disk instead so
// edits show up without a rebuild.
//
//go:embed all:frontend/templates
var TemplateFS embed.FS
