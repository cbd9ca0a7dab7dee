package db

import (
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
)

func newTracer() pgx.QueryTracer {
	return otelpgx.NewTracer(otelpgx.WithIncludeQueryParameters())
}
