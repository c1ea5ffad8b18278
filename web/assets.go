// Package web contains the embedded settings page assets.
package web

import "embed"

// Assets contains the embedded HTML for the built-in settings page.
//
//go:embed *.html
var Assets embed.FS
