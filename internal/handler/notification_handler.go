package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/fanout"
	"github.com/shiftguard/notify-engine/internal/repository"
	"github.com/shiftguard/notify-engine/internal/service"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 100
	streamBuffer       = 16
	heartbeatInterval  = 15 * time.Second
	defaultAnalyticsHr = 24
)

type NotificationService interface {
	Create(ctx context.Context, req service.CreateRequest) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	MarkRead(ctx context.Context, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Acknowledge(ctx context.Context, id string) (*domain.Notification, error)
	Stats(ctx context.Context, recipientID string) (*domain.RecipientStats, error)
	Retry(ctx context.Context, id string) (*service.DeliveryResult, error)
	DeliveryHistory(ctx context.Context, id string) ([]domain.DeliveryAttempt, error)
	Analytics(ctx context.Context, from, to time.Time) (*service.DeliveryAnalytics, error)
	Subscribe(ctx context.Context, recipientID string, fn fanout.Handler) (func(), error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/read", h.MarkRead)
	v1.Post("/notifications/:id/acknowledge", h.Acknowledge)
	v1.Post("/notifications/:id/retry", h.RetryNotification)
	v1.Get("/notifications/:id/attempts", h.GetDeliveryHistory)
	v1.Post("/recipients/:recipientId/read-all", h.MarkAllRead)
	v1.Get("/recipients/:recipientId/stats", h.GetRecipientStats)
	v1.Get("/recipients/:recipientId/stream", h.StreamNotifications)
	v1.Get("/analytics/deliveries", h.GetDeliveryAnalytics)

	return nil
}

type createNotificationRequest struct {
	RecipientID string         `json:"recipientId"`
	SenderID    *string        `json:"senderId,omitempty"`
	Type        string         `json:"type"`
	Priority    string         `json:"priority"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Channels    []string       `json:"channels"`
	ActionData  map[string]any `json:"actionData,omitempty"`
	RelatedType *string        `json:"relatedType,omitempty"`
	RelatedID   *string        `json:"relatedId,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
}

type notificationResponse struct {
	ID             string         `json:"id"`
	RecipientID    string         `json:"recipientId"`
	SenderID       *string        `json:"senderId,omitempty"`
	Type           string         `json:"type"`
	Priority       string         `json:"priority"`
	Category       string         `json:"category"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ActionData     map[string]any `json:"actionData,omitempty"`
	RelatedType    *string        `json:"relatedType,omitempty"`
	RelatedID      *string        `json:"relatedId,omitempty"`
	Status         string         `json:"status"`
	Channels       []string       `json:"channels"`
	IsRead         bool           `json:"isRead"`
	ReadAt         *time.Time     `json:"readAt,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type channelOutcomeResponse struct {
	Channel           string `json:"channel"`
	Success           bool   `json:"success"`
	Provider          string `json:"provider,omitempty"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	DurationMs        int64  `json:"durationMs"`
	AttemptNumber     int    `json:"attemptNumber"`
}

type deliveryResultResponse struct {
	NotificationID string                   `json:"notificationId"`
	Pass           int                      `json:"pass"`
	Status         string                   `json:"status"`
	Delivered      bool                     `json:"delivered"`
	Outcomes       []channelOutcomeResponse `json:"outcomes"`
}

type attemptResponse struct {
	ID                string     `json:"id"`
	NotificationID    string     `json:"notificationId"`
	Channel           string     `json:"channel"`
	AttemptNumber     int        `json:"attemptNumber"`
	Outcome           string     `json:"outcome"`
	Provider          string     `json:"provider,omitempty"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	ErrorCode         *string    `json:"errorCode,omitempty"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	DurationMs        int64      `json:"durationMs"`
	AttemptedAt       time.Time  `json:"attemptedAt"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
}

type recipientStatsResponse struct {
	Total      int64            `json:"total"`
	Unread     int64            `json:"unread"`
	Urgent     int64            `json:"urgent"`
	Emergency  int64            `json:"emergency"`
	ByCategory map[string]int64 `json:"byCategory"`
	ByPriority map[string]int64 `json:"byPriority"`
}

type channelBreakdownResponse struct {
	Attempts  int64 `json:"attempts"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

type analyticsResponse struct {
	From              time.Time                           `json:"from"`
	To                time.Time                           `json:"to"`
	TotalAttempts     int64                               `json:"totalAttempts"`
	DeliveredCount    int64                               `json:"deliveredCount"`
	FailedCount       int64                               `json:"failedCount"`
	AverageDurationMs float64                             `json:"averageDurationMs"`
	ByChannel         map[string]channelBreakdownResponse `json:"byChannel"`
	ByStatus          map[string]int64                    `json:"byStatus"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(successResponse{
		Success: true,
		Data:    data,
	})
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(c.Context(), service.CreateRequest{
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		Priority:    req.Priority,
		Category:    req.Category,
		Title:       req.Title,
		Message:     req.Message,
		Channels:    req.Channels,
		ActionData:  req.ActionData,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusCreated, toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	notification, err := h.service.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	notifications, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Limit:  params.Limit,
			Offset: params.Offset,
			Total:  total,
		},
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	notification, err := h.service.MarkRead(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, toNotificationResponse(notification))
}

func (h *NotificationHandler) Acknowledge(c *fiber.Ctx) error {
	notification, err := h.service.Acknowledge(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, toNotificationResponse(notification))
}

func (h *NotificationHandler) RetryNotification(c *fiber.Ctx) error {
	result, err := h.service.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, toDeliveryResultResponse(result))
}

func (h *NotificationHandler) GetDeliveryHistory(c *fiber.Ctx) error {
	attempts, err := h.service.DeliveryHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		responses = append(responses, toAttemptResponse(&attempts[i]))
	}
	return ok(c, fiber.StatusOK, responses)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkAllRead(c.Context(), c.Params("recipientId"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"updatedCount": updated,
	})
}

func (h *NotificationHandler) GetRecipientStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context(), c.Params("recipientId"))
	if err != nil {
		return err
	}

	response := recipientStatsResponse{
		Total:      stats.Total,
		Unread:     stats.Unread,
		Urgent:     stats.Urgent,
		Emergency:  stats.Emergency,
		ByCategory: make(map[string]int64, len(stats.ByCategory)),
		ByPriority: make(map[string]int64, len(stats.ByPriority)),
	}
	for category, count := range stats.ByCategory {
		response.ByCategory[category.String()] = count
	}
	for priority, count := range stats.ByPriority {
		response.ByPriority[priority.String()] = count
	}
	return ok(c, fiber.StatusOK, response)
}

func (h *NotificationHandler) GetDeliveryAnalytics(c *fiber.Ctx) error {
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return err
	}
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return err
	}

	// Default window is the trailing day.
	if to == nil {
		now := time.Now().UTC()
		to = &now
	}
	if from == nil {
		start := to.Add(-defaultAnalyticsHr * time.Hour)
		from = &start
	}

	analytics, err := h.service.Analytics(c.Context(), *from, *to)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, toAnalyticsResponse(analytics))
}

// StreamNotifications serves the recipient's live feed as server-sent events.
// The subscription is detached when the client disconnects.
func (h *NotificationHandler) StreamNotifications(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	if recipientID == "" {
		return fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	events := make(chan fanout.Envelope, streamBuffer)
	unsubscribe, err := h.service.Subscribe(context.Background(), recipientID, func(envelope fanout.Envelope) {
		// A slow consumer drops events instead of blocking the broker.
		select {
		case events <- envelope:
		default:
		}
	})
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		streamEvents(w, events, heartbeatInterval)
	})
	return nil
}

// streamEvents writes SSE frames until the events channel closes or a flush
// fails, which is how a disconnected client surfaces here.
func streamEvents(w *bufio.Writer, events <-chan fanout.Envelope, heartbeatEvery time.Duration) {
	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case envelope, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(envelope)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", envelope.Event, payload)
			if err := w.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		RecipientID: strings.TrimSpace(c.Query("recipientId")),
		Limit:       c.QueryInt("limit", defaultListLimit),
		Offset:      c.QueryInt("offset", 0),
	}

	if params.Limit < 1 || params.Limit > maxListLimit {
		return repository.ListParams{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}
	if params.Offset < 0 {
		return repository.ListParams{}, fmt.Errorf("%w: offset must be >= 0", domain.ErrValidation)
	}

	for _, raw := range splitQueryList(c.Query("category")) {
		category, err := domain.ParseCategoryFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Categories = append(params.Categories, category)
	}

	for _, raw := range splitQueryList(c.Query("priority")) {
		priority, err := domain.ParsePriorityFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Priorities = append(params.Priorities, priority)
	}

	if rawUnread := strings.TrimSpace(c.Query("unread")); rawUnread != "" {
		switch strings.ToLower(rawUnread) {
		case "true":
			unread := true
			params.Unread = &unread
		case "false":
			unread := false
			params.Unread = &unread
		default:
			return repository.ListParams{}, fmt.Errorf("%w: unread must be true or false", domain.ErrValidation)
		}
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func splitQueryList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	channels := make([]string, 0, len(n.Channels))
	for _, ch := range n.Channels {
		channels = append(channels, ch.String())
	}

	return notificationResponse{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		SenderID:       n.SenderID,
		Type:           n.Type.String(),
		Priority:       n.Priority.String(),
		Category:       n.Category.String(),
		Title:          n.Title,
		Message:        n.Message,
		ActionData:     n.ActionData,
		RelatedType:    n.RelatedType,
		RelatedID:      n.RelatedID,
		Status:         n.Status.String(),
		Channels:       channels,
		IsRead:         n.IsRead,
		ReadAt:         n.ReadAt,
		AcknowledgedAt: n.AcknowledgedAt,
		ExpiresAt:      n.ExpiresAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func toDeliveryResultResponse(result *service.DeliveryResult) deliveryResultResponse {
	if result == nil {
		return deliveryResultResponse{}
	}

	outcomes := make([]channelOutcomeResponse, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes = append(outcomes, channelOutcomeResponse{
			Channel:           outcome.Channel.String(),
			Success:           outcome.Success,
			Provider:          outcome.Provider,
			ProviderMessageID: outcome.ProviderMessageID,
			ErrorCode:         outcome.ErrorCode,
			ErrorMessage:      outcome.ErrorMessage,
			DurationMs:        outcome.Duration.Milliseconds(),
			AttemptNumber:     outcome.AttemptNumber,
		})
	}

	return deliveryResultResponse{
		NotificationID: result.NotificationID,
		Pass:           result.Pass,
		Status:         result.Status.String(),
		Delivered:      result.Delivered,
		Outcomes:       outcomes,
	}
}

func toAttemptResponse(attempt *domain.DeliveryAttempt) attemptResponse {
	return attemptResponse{
		ID:                attempt.ID,
		NotificationID:    attempt.NotificationID,
		Channel:           attempt.Channel.String(),
		AttemptNumber:     attempt.AttemptNumber,
		Outcome:           attempt.Outcome.String(),
		Provider:          attempt.Provider,
		ProviderMessageID: attempt.ProviderMessageID,
		ErrorCode:         attempt.ErrorCode,
		ErrorMessage:      attempt.ErrorMessage,
		DurationMs:        attempt.DurationMillis,
		AttemptedAt:       attempt.AttemptedAt,
		DeliveredAt:       attempt.DeliveredAt,
	}
}

func toAnalyticsResponse(analytics *service.DeliveryAnalytics) analyticsResponse {
	if analytics == nil {
		return analyticsResponse{}
	}

	response := analyticsResponse{
		From:              analytics.From,
		To:                analytics.To,
		TotalAttempts:     analytics.TotalAttempts,
		DeliveredCount:    analytics.DeliveredCount,
		FailedCount:       analytics.FailedCount,
		AverageDurationMs: analytics.AverageDurationMs,
		ByChannel:         make(map[string]channelBreakdownResponse, len(analytics.ByChannel)),
		ByStatus:          make(map[string]int64, len(analytics.ByStatus)),
	}
	for ch, breakdown := range analytics.ByChannel {
		response.ByChannel[ch.String()] = channelBreakdownResponse{
			Attempts:  breakdown.Attempts,
			Delivered: breakdown.Delivered,
			Failed:    breakdown.Failed,
		}
	}
	for outcome, count := range analytics.ByStatus {
		response.ByStatus[outcome.String()] = count
	}
	return response
}
