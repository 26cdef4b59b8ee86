// Package register registers all relevant Boards.
package register

import (
	// for boards.
	_ "github.com/nanoalchemist/movement/components/board/fake"
	_ "github.com/nanoalchemist/movement/components/board/genericlinux"
	_ "github.com/nanoalchemist/movement/components/board/periph"
)
