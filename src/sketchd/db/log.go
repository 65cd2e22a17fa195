package db

import (
	"github.com/bitswalk/sketchforge/src/common/logs"
	"github.com/bitswalk/sketchforge/src/sketchd/db/migrations"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the db package and its migrations
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
		migrations.SetLogger(l)
	}
}
