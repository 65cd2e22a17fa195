// sketchd assembles firmware sketches from a component catalog, builds
// them with the external toolchain and identifies uploaded firmware.
package main

import (
	"github.com/bitswalk/sketchforge/src/sketchd/core"
)

func main() {
	core.Execute()
}
