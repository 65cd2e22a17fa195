package lookup

import "github.com/bitswalk/sketchforge/src/common/logs"

var log = logs.NewDefault()

// SetLogger sets the logger for the lookup package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}
