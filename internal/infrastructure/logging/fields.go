package logging

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Task tags a log line with the transport task identity.
func Task(id types.TaskID) zap.Field {
	return zap.Uint64("task", uint64(id))
}

// Request tags a log line with the request's correlation id, method and URL.
func Request(req *types.Request) zap.Field {
	if req == nil {
		return zap.Skip()
	}
	return zap.Dict("request",
		zap.String("id", req.ID.String()),
		zap.String("method", string(req.Method)),
		zap.String("url", req.URL),
	)
}

// Status tags a log line with a response status when one is known.
func Status(status *types.Status) zap.Field {
	if status == nil {
		return zap.Skip()
	}
	return zap.Int("status", status.Code())
}
