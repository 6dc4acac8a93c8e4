package httpapi

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"ragchat/internal/domain"
)

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	SessionID string           `json:"session_id"`
	Answer    string           `json:"answer"`
	Passages  []domain.Passage `json:"passages"`
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type sessionResponse struct {
	ID    string        `json:"id"`
	Turns []domain.Turn `json:"turns"`
}

func (s *Server) health(c fiber.Ctx) error {
	body := fiber.Map{"status": "healthy"}
	if s.deps.Health != nil {
		for k, v := range s.deps.Health() {
			body[k] = v
		}
	}
	return c.JSON(body)
}

func (s *Server) query(c fiber.Ctx) error {
	var req queryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}
	if req.K < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "k must not be negative"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	passages, err := s.deps.Retrieve.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"passages": passages, "count": len(passages)})
}

func (s *Server) getSession(c fiber.Ctx) error {
	sess, err := s.deps.Sessions.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	turns := sess.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	return c.JSON(sessionResponse{ID: sess.ID, Turns: turns})
}

func (s *Server) postMessage(c fiber.Ctx) error {
	id := c.Params("id")

	var req messageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	res, err := s.deps.Chat.Ask(ctx, id, req.Message, nil)
	if err != nil {
		return s.fail(c, err)
	}

	passages := res.Passages
	if passages == nil {
		passages = []domain.Passage{}
	}
	return c.JSON(messageResponse{SessionID: id, Answer: res.Answer, Passages: passages})
}
