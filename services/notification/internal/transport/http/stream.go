package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/infrastructure/pubsub"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const heartbeatInterval = 15 * time.Second

type StreamHandler struct {
	fanout pubsub.Fanout
	logger *zap.Logger
	// closed when the process shuts down so open streams let go of the server
	done <-chan struct{}
}

func NewStreamHandler(ctx context.Context, fanout pubsub.Fanout, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		fanout: fanout,
		logger: logger,
		done:   ctx.Done(),
	}
}

func RegisterRoutes(app *fiber.App, h *StreamHandler) {
	app.Get("/notifications/stream", h.Stream)
}

// Stream relays notifications as server-sent events. An auctionId query
// parameter narrows the stream to one auction.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	auctionID := c.Query("auctionId")

	sub := h.fanout.Subscribe(context.Background())
	if _, err := sub.Receive(c.UserContext()); err != nil {
		_ = sub.Close()
		h.logger.Error("Error subscribing to notifications", zap.Error(err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "notifications unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = sub.Close()
		}()

		messages := sub.Channel()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-h.done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var n domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					h.logger.Warn("Skipping unreadable notification", zap.Error(err))
					continue
				}

				if auctionID != "" && n.AuctionID != auctionID {
					continue
				}

				if err := writeEvent(w, n); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
					return
				}
			}

			// a failed flush means the client went away
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}

func writeEvent(w io.Writer, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.EventID, n.Type, data)
	return err
}
