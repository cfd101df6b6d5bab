package command

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iotfleet/usergate/internal/api"
	"github.com/iotfleet/usergate/internal/appctx"
	"github.com/iotfleet/usergate/internal/directory"
	"github.com/iotfleet/usergate/internal/users"
)

// Handler serves the command endpoint. POST only; every outcome is a JSON
// envelope.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates the command endpoint handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := appctx.GetLogger(r.Context())

	if r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, api.ReasonMethodNotAllowed,
			"command endpoint accepts POST only")
		return
	}

	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	cmd, err := Parse(env)
	if err != nil {
		status, reason := classify(err)
		logger.Warn("rejected command",
			"operation", env.FunctionSelection,
			"reason", reason,
			"error", err)
		api.WriteError(w, status, reason, err.Error())
		return
	}

	data, err := h.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		status, reason := classify(err)
		logger.Error("command failed",
			"operation", cmd.Operation(),
			"reason", reason,
			"error", err)
		api.WriteError(w, status, reason, err.Error())
		return
	}

	logger.Info("command completed", "operation", cmd.Operation())
	api.WriteSuccess(w, data)
}

// classify maps an operation error onto an HTTP status and reason code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, api.ReasonInvalidArgument
	case errors.Is(err, ErrUnsupportedOperation):
		return http.StatusBadRequest, api.ReasonUnsupportedOperation
	case errors.Is(err, users.ErrInvitationFailed):
		return http.StatusBadGateway, api.ReasonInvitationFailed
	case errors.Is(err, users.ErrDeleteFailed):
		return http.StatusBadGateway, api.ReasonDeleteFailed
	case errors.Is(err, users.ErrToggleFailed):
		return http.StatusBadGateway, api.ReasonToggleFailed
	}

	var de *directory.Error
	if errors.As(err, &de) {
		return http.StatusBadGateway, api.ReasonDirectoryError
	}
	return http.StatusInternalServerError, api.ReasonInternalError
}
