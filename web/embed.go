// Package web holds the static page shells served by the HTTP server.
package web

import (
	"embed"
	"io/fs"
	"strings"
)

//go:embed *.html static
var embeddedFiles embed.FS

// Dist is a filesystem that serves the embedded page shells.
var Dist, _ = fs.Sub(embeddedFiles, ".")

// pages maps a public route to its shell
var pages = map[string]string{
	"/":                "index.html",
	"/login":           "login.html",
	"/register":        "register.html",
	"/forgot-password": "forgot-password.html",
	"/reset-password":  "reset-password.html",
}

// PageFor returns the shell for a route, or "" when there is none. Every
// /dashboard route shares one shell.
func PageFor(path string) string {
	if page, ok := pages[path]; ok {
		return page
	}
	if path == "/dashboard" || strings.HasPrefix(path, "/dashboard/") {
		return "dashboard.html"
	}
	return ""
}
