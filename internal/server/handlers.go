package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tablemates/backend/internal/ledger"
	"github.com/tablemates/backend/internal/middleware"
	"github.com/tablemates/backend/internal/models"
	"github.com/tablemates/backend/internal/session"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and name are required")
	}

	user, err := s.auth.Register(c.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := s.auth.Authenticate(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		return err
	}

	return c.JSON(authResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

type orderItemRequest struct {
	FoodID         string `json:"food_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

type createOrderRequest struct {
	Items          []orderItemRequest `json:"items"`
	ParticipantIDs []string           `json:"participant_ids"`
}

type shareResponse struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}

type createOrderResponse struct {
	OrderID       string          `json:"order_id"`
	CorrelationID string          `json:"correlation_id"`
	TotalCents    int64           `json:"total_cents"`
	Shares        []shareResponse `json:"shares"`
}

func (s *Server) handleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items := make([]models.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = models.OrderItem{
			FoodID:         it.FoodID,
			Name:           it.Name,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
		}
	}

	order, participants, err := s.orders.Create(c.Context(), ledger.CreateInput{
		CreatorID:      middleware.GetUserID(c),
		ParticipantIDs: req.ParticipantIDs,
		Items:          items,
	})
	if err != nil {
		return err
	}

	shares := make([]shareResponse, len(participants))
	for i, p := range participants {
		shares[i] = shareResponse{UserID: p.UserID, AmountCents: p.AmountOwedCents}
	}

	return c.Status(fiber.StatusCreated).JSON(createOrderResponse{
		OrderID:       order.ID,
		CorrelationID: order.CorrelationID,
		TotalCents:    order.TotalCents,
		Shares:        shares,
	})
}

type orderResponse struct {
	ID                 string             `json:"id"`
	CorrelationID      string             `json:"correlation_id"`
	CreatorID          string             `json:"creator_id"`
	Items              []orderItemRequest `json:"items"`
	TotalCents         int64              `json:"total_cents"`
	Status             models.OrderStatus `json:"status"`
	CreatedAt          int64              `json:"created_at"`
	ExpectedDeliveryAt int64              `json:"expected_delivery_at,omitempty"`
}

func (s *Server) handleGetOrder(c *fiber.Ctx) error {
	order, err := s.orders.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	items := make([]orderItemRequest, len(order.Items))
	for i, it := range order.Items {
		items[i] = orderItemRequest{
			FoodID:         it.FoodID,
			Name:           it.Name,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
		}
	}

	return c.JSON(orderResponse{
		ID:                 order.ID,
		CorrelationID:      order.CorrelationID,
		CreatorID:          order.CreatorID,
		Items:              items,
		TotalCents:         order.TotalCents,
		Status:             order.Status,
		CreatedAt:          order.CreatedAt,
		ExpectedDeliveryAt: order.ExpectedDeliveryAt,
	})
}

type participantResponse struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	HasPaid     bool   `json:"has_paid"`
	Delivered   bool   `json:"delivered"`
}

type ledgerResponse struct {
	OrderID    string                `json:"order_id"`
	Status     models.OrderStatus    `json:"status"`
	TotalCents int64                 `json:"total_cents"`
	PaidCents  int64                 `json:"paid_cents"`
	Settled    bool                  `json:"settled"`
	Paid       []participantResponse `json:"paid"`
	Unpaid     []participantResponse `json:"unpaid"`
}

func (s *Server) handleGetLedger(c *fiber.Ctx) error {
	st, err := s.orders.GetLedger(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	resp := ledgerResponse{
		OrderID:    st.Order.ID,
		Status:     st.Order.Status,
		TotalCents: st.Order.TotalCents,
		PaidCents:  st.PaidCents,
		Settled:    st.Settled,
		Paid:       toParticipantResponses(st.Paid),
		Unpaid:     toParticipantResponses(st.Unpaid),
	}
	return c.JSON(resp)
}

func toParticipantResponses(participants []models.Participant) []participantResponse {
	out := make([]participantResponse, len(participants))
	for i, p := range participants {
		out[i] = participantResponse{
			UserID:      p.UserID,
			AmountCents: p.AmountOwedCents,
			HasPaid:     p.HasPaid,
			Delivered:   p.Delivered,
		}
	}
	return out
}

type issueCodeResponse struct {
	Issued bool   `json:"issued"`
	Code   string `json:"code,omitempty"`
}

func (s *Server) handleIssueCode(c *fiber.Ctx) error {
	ch, err := s.orders.IssueCode(c.Context(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	resp := issueCodeResponse{Issued: true}
	if s.echoCodes {
		resp.Code = ch.Code
	}
	return c.JSON(resp)
}

type payRequest struct {
	Code      string `json:"code"`
	Reference string `json:"reference"`
}

type payResponse struct {
	Paid           bool `json:"paid"`
	OrderConfirmed bool `json:"order_confirmed"`
}

func (s *Server) handlePay(c *fiber.Ctx) error {
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	res, err := s.orders.Pay(c.Context(), c.Params("id"), middleware.GetUserID(c), req.Code, req.Reference)
	if err != nil {
		return err
	}

	return c.JSON(payResponse{Paid: res.Paid, OrderConfirmed: res.OrderConfirmed})
}

func (s *Server) handleCancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := s.orders.GetOrder(c.Context(), orderID)
	if err != nil {
		return err
	}
	if order.CreatorID != middleware.GetUserID(c) {
		return fiber.NewError(fiber.StatusForbidden, "only the order creator can cancel")
	}

	if err := s.orders.CancelOrder(c.Context(), orderID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"cancelled": true})
}

func (s *Server) handleCancelParticipant(c *fiber.Ctx) error {
	orderCancelled, err := s.orders.CancelParticipant(c.Context(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"cancelled": true, "order_cancelled": orderCancelled})
}

func (s *Server) handleConfirmDelivery(c *fiber.Ctx) error {
	all, err := s.orders.ConfirmDelivery(c.Context(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"all_delivered": all})
}

type sessionResponse struct {
	OrderID string   `json:"order_id"`
	Status  string   `json:"status"`
	Members []string `json:"members"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		OrderID: s.OrderID,
		Status:  string(s.State),
		Members: s.Members,
	}
}

func (s *Server) handleJoinSession(c *fiber.Ctx) error {
	snap, err := s.orders.JoinSession(c.Context(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(toSessionResponse(snap))
}

func (s *Server) handleLeaveSession(c *fiber.Ctx) error {
	snap, err := s.orders.LeaveSession(c.Context(), c.Params("id"), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(toSessionResponse(snap))
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	snap, err := s.orders.EndSession(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toSessionResponse(snap))
}
