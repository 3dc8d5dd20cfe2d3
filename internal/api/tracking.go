package api

import (
	"net/http"
	"time"

	"storefront/internal/models"
	"storefront/internal/tracker"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 15 * time.Second

type trackingEvent struct {
	OrderID string        `json:"orderId"`
	Phase   string        `json:"phase"`
	Status  string        `json:"status,omitempty"`
	Order   *models.Order `json:"order,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func newTrackingEvent(state tracker.State) trackingEvent {
	event := trackingEvent{
		OrderID: state.OrderID,
		Phase:   state.Phase.String(),
		Order:   state.Order,
	}
	if status, ok := state.Status(); ok {
		event.Status = status.String()
	}
	if state.Err != nil {
		event.Error = state.Err.Error()
	}
	return event
}

// finished reports whether no further state can follow
func finished(state tracker.State) bool {
	if status, ok := state.Status(); ok {
		return status.IsTerminal()
	}
	return state.Phase == tracker.PhaseNotFound || state.Phase == tracker.PhaseFailed
}

// latest is a one-slot mailbox that keeps only the newest value. It has a
// single producer: hub callbacks are serialized per order.
type latest[T any] chan T

func (l latest[T]) put(v T) {
	select {
	case <-l:
	default:
	}
	l <- v
}

// trackOrder streams tracker states as server-sent events until the order
// is delivered, the session ends, or the client goes away. Viewers of the
// same order share one session; the last one to leave stops it.
func (h *Handler) trackOrder(c *gin.Context) {
	owner, err := sessionFrom(c).Identity()
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	states := make(latest[tracker.State], 1)
	advanceErrs := make(latest[error], 1)

	release := h.tracking.Watch(models.OrdersNamespace(string(owner)), c.Param("id"), tracker.Watcher{
		OnChange:       states.put,
		OnAdvanceError: advanceErrs.put,
	})
	defer release()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-states:
			c.SSEvent("state", newTrackingEvent(state))
			c.Writer.Flush()
			if finished(state) {
				return
			}
		case err := <-advanceErrs:
			c.SSEvent("advance_error", gin.H{"error": err.Error()})
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}
