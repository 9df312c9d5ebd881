package rpc

import (
	"encoding/json"
	"fmt"
)

// dispatch routes a Request to its handler. Unknown tools are a client
// error, not a server error (spec §7 error taxonomy: validation errors are
// caller-facing, not "integrity").
func (s *Server) dispatch(req Request) Response {
	handler, ok := handlers[req.Tool]
	if !ok {
		return Response{OK: false, Error: fmt.Sprintf("unknown tool %q", req.Tool)}
	}
	if err := handler(s, req.Params); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

type handlerFunc func(s *Server, params json.RawMessage) error

var handlers = map[string]handlerFunc{
	"claustre_status":        handleStatus,
	"claustre_task_done":     handleTaskDone,
	"claustre_rate_limited":  handleRateLimited,
	"claustre_usage_windows": handleUsageWindows,
	"claustre_log":           handleLog,
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
