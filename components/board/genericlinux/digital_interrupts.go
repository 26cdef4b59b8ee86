//go:build linux

package genericlinux

import (
	"context"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/board"
)

type digitalInterrupt struct {
	*board.BasicDigitalInterrupt

	offset     uint32
	line       *gpio.LineWithEvent
	cancelCtx  context.Context
	cancelFunc func()
}

func (b *Board) createDigitalInterrupt(config board.DigitalInterruptConfig) (*digitalInterrupt, error) {
	offset, err := lineOffset(config.Pin)
	if err != nil {
		return nil, err
	}

	chip, err := gpio.OpenChip(b.chipDev)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLineWithEvents(offset, gpio.Input, gpio.BothEdges, consumerName)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(b.cancelCtx)
	di := &digitalInterrupt{
		BasicDigitalInterrupt: board.NewBasicDigitalInterrupt(config.Name),
		offset:                offset,
		line:                  line,
		cancelCtx:             cancelCtx,
		cancelFunc:            cancelFunc,
	}
	b.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(di.monitor, b.activeBackgroundWorkers.Done)
	return di, nil
}

func (di *digitalInterrupt) monitor() {
	for {
		select {
		case <-di.cancelCtx.Done():
			return
		case event, ok := <-di.line.Events():
			if !ok {
				return
			}
			utils.UncheckedError(di.Tick(di.cancelCtx, event.RisingEdge, uint64(event.Time.UnixNano())))
		}
	}
}

// Level reads the line directly.
func (di *digitalInterrupt) Level(ctx context.Context, extra map[string]interface{}) (bool, error) {
	value, err := di.line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "reading digital interrupt %s", di.Name())
	}
	return value != 0, nil
}

func (di *digitalInterrupt) Close() error {
	// The reader goroutine only touches the event channel, so it may outlive the line briefly.
	di.cancelFunc()
	return di.line.Close()
}
