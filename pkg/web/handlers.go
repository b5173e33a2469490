package web

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-waiter/pkg/hub"
	"github.com/teslashibe/go-waiter/pkg/order"
	"github.com/teslashibe/go-waiter/pkg/protocol"
)

// Canned exchange for simulate_voice_input.
const (
	simulatedInput = "Hello, I would like to order some food"
	simulatedReply = "Hello! I'd be happy to help you with your food order. What would you like to eat today?"

	statusServerConnected = "Connected to server"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Listening bool   `json:"listening"`
	Clients   int    `json:"clients"`

	Turns           int   `json:"turns"`
	AvgFirstAudioMs int64 `json:"avg_first_audio_ms"`
	AvgTurnMs       int64 `json:"avg_turn_ms"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus reports the voice session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	stats := s.voice.TurnStats()
	return c.JSON(StatusResponse{
		State:           s.voice.State().String(),
		SessionID:       s.voice.SessionID(),
		Listening:       s.voice.Listening(),
		Clients:         s.hub.ClientCount(),
		Turns:           stats.Turns,
		AvgFirstAudioMs: stats.AvgFirstAudio.Milliseconds(),
		AvgTurnMs:       stats.AvgTotal.Milliseconds(),
	})
}

// handleMenu lists available items, optionally filtered by ?category=
func (s *Server) handleMenu(c *fiber.Ctx) error {
	items, err := s.store.ListMenu(c.UserContext(), c.Query("category"))
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	if items == nil {
		items = []order.MenuItem{}
	}
	return c.JSON(items)
}

// handleOrders lists deliveries for ?phone=
func (s *Server) handleOrders(c *fiber.Ctx) error {
	phone := c.Query("phone")
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phone is required",
		})
	}
	records, err := s.store.DeliveriesByPhone(c.UserContext(), phone)
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	if records == nil {
		records = []order.DeliveryStatusRecord{}
	}
	return c.JSON(records)
}

// handleAdvanceDelivery moves a delivery one status forward
func (s *Server) handleAdvanceDelivery(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	d, err := s.store.AdvanceDelivery(c.UserContext(), int64(id))
	switch {
	case errors.Is(err, order.ErrDeliveryNotFound):
		return s.fail(c, fiber.StatusNotFound, err)
	case errors.Is(err, order.ErrStatusFinal):
		return s.fail(c, fiber.StatusConflict, err)
	case err != nil:
		return s.fail(c, fiber.StatusInternalServerError, err)
	}

	s.log.Info("delivery advanced", "order_id", d.OrderID, "status", d.Status)
	return c.JSON(d)
}

func (s *Server) fail(c *fiber.Ctx, code int, err error) error {
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleWS pumps one dashboard websocket through the hub
func (s *Server) handleWS(c *websocket.Conn) {
	if err := s.hub.Serve(c); err != nil {
		s.log.Debug("websocket rejected", "error", err)
	}
}

func (s *Server) welcome(c *hub.Client) {
	msg, err := protocol.NewStatusMessage(statusServerConnected)
	if err != nil {
		return
	}
	if err := c.Send(msg); err != nil {
		s.log.Debug("welcome not sent", "client_id", c.ID, "error", err)
	}
}

// handleCommand runs a dashboard command. Failures are already reported
// to the UI as status events by the coordinator, so they are only logged.
func (s *Server) handleCommand(c *hub.Client, msg *protocol.Message) {
	s.log.Debug("command", "client_id", c.ID, "type", msg.Type)

	switch msg.Type {
	case protocol.TypeStartVoice:
		if err := s.voice.StartSession(s.ctx); err != nil {
			s.log.Warn("start session failed", "error", err)
			return
		}
		if err := s.voice.StartListening(s.ctx); err != nil {
			s.log.Warn("start listening failed", "error", err)
		}

	case protocol.TypeStopVoice:
		if err := s.voice.StopListening(); err != nil {
			s.log.Warn("stop listening failed", "error", err)
		}

	case protocol.TypeEndSession:
		if err := s.voice.StopSession(); err != nil {
			s.log.Warn("stop session failed", "error", err)
		}

	case protocol.TypeSimulateVoiceInput:
		text := simulatedInput
		if data, err := msg.GetSimulateVoiceInputData(); err == nil && data.Text != "" {
			text = data.Text
		}
		now := s.now()
		s.emit(protocol.NewUserInputMessage(text, now))
		s.emit(protocol.NewBotResponseMessage(simulatedReply, now))
	}
}

func (s *Server) emit(msg *protocol.Message, err error) {
	if err != nil {
		s.log.Warn("failed to build event", "error", err)
		return
	}
	s.hub.Emit(msg)
}
