package decisionsupport

import "embed"

// templatesFS embeds every response template so the binary works
// regardless of working directory.
//
//go:embed templates/*.tmpl
var templatesFS embed.FS
