//go:build !linux

package genericlinux

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/nanoalchemist/movement/components/board"
)

func init() {
	// Construction always fails off linux.
	board.RegisterBoard(ModelName, func(ctx context.Context, cfg board.Config, logger golog.Logger) (board.Board, error) {
		return nil, errors.Errorf("board model %q needs the linux gpio character device", ModelName)
	})
}
