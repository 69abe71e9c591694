// Package migrations содержит SQL-миграции heating-svc в формате goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
