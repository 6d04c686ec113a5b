package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
)

func (ctl *SignalWSController) handlePing(_ context.Context, id core.ConnID, _ []byte) error {
	ctl.Orch.Send(id, core.EventPong, nil)
	return nil
}
