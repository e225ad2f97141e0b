// Package appfs embeds the files the binaries need at runtime (migrations & templates).
package appfs

import "embed"

//go:embed migrations/*.sql all:templates
var FS embed.FS
