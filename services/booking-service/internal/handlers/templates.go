package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/cache"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/model"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/storage"
)

// TemplateHandler serves the business-facing endpoints for managing booking
// templates, weekly availability rules and date exceptions. Every request is
// scoped to the business in the X-Business-Id header.
type TemplateHandler struct {
	templates  *storage.TemplateRepository
	rules      *storage.RuleRepository
	exceptions *storage.ExceptionRepository
	slotCache  *cache.SlotCache
	logger     *slog.Logger
}

func NewTemplateHandler(
	templates *storage.TemplateRepository,
	rules *storage.RuleRepository,
	exceptions *storage.ExceptionRepository,
	slotCache *cache.SlotCache,
	logger *slog.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		templates:  templates,
		rules:      rules,
		exceptions: exceptions,
		slotCache:  slotCache,
		logger:     logger,
	}
}

type templateRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	DurationMinutes  int    `json:"duration_minutes"`
	DefaultStartHour int    `json:"default_start_hour"`
	DefaultEndHour   int    `json:"default_end_hour"`
}

type templateResponse struct {
	TemplateID       string `json:"template_id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DurationMinutes  int    `json:"duration_minutes"`
	DefaultStartHour int    `json:"default_start_hour"`
	DefaultEndHour   int    `json:"default_end_hour"`
	CreatedAt        string `json:"created_at"`
}

type ruleRequest struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable *bool  `json:"is_available"`
}

type ruleResponse struct {
	RuleID      string `json:"rule_id"`
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type exceptionRequest struct {
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	Reason      string `json:"reason"`
}

type exceptionResponse struct {
	ExceptionID string `json:"exception_id"`
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	Reason      string `json:"reason,omitempty"`
}

// Templates dispatches /api/v1/templates by method: POST creates, GET lists,
// PUT updates and DELETE removes (id in the query string for the last two).
func (h *TemplateHandler) Templates(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.createTemplate(w, r, businessID)
	case http.MethodGet:
		h.listTemplates(w, r, businessID)
	case http.MethodPut:
		h.updateTemplate(w, r, businessID)
	case http.MethodDelete:
		h.deleteTemplate(w, r, businessID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TemplateHandler) createTemplate(w http.ResponseWriter, r *http.Request, businessID string) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := validateTemplateRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	tpl := &model.BookingTemplate{
		BusinessID:       businessID,
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		DurationMinutes:  req.DurationMinutes,
		DefaultStartHour: req.DefaultStartHour,
		DefaultEndHour:   req.DefaultEndHour,
	}
	id, err := h.templates.Create(r.Context(), tpl)
	if err != nil {
		h.logger.Error("create template failed", "business_id", businessID, "err", err)
		http.Error(w, "failed to create template", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"template_id": id})
}

func (h *TemplateHandler) listTemplates(w http.ResponseWriter, r *http.Request, businessID string) {
	templates, err := h.templates.ListByBusiness(r.Context(), businessID, 100)
	if err != nil {
		http.Error(w, "failed to list templates", http.StatusInternalServerError)
		return
	}
	items := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, templateResponse{
			TemplateID:       tpl.ID,
			Name:             tpl.Name,
			Description:      tpl.Description,
			DurationMinutes:  tpl.DurationMinutes,
			DefaultStartHour: tpl.DefaultStartHour,
			DefaultEndHour:   tpl.DefaultEndHour,
			CreatedAt:        tpl.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TemplateHandler) updateTemplate(w http.ResponseWriter, r *http.Request, businessID string) {
	templateID := strings.TrimSpace(r.URL.Query().Get("id"))
	if templateID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := validateTemplateRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	tpl := &model.BookingTemplate{
		ID:               templateID,
		BusinessID:       businessID,
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		DurationMinutes:  req.DurationMinutes,
		DefaultStartHour: req.DefaultStartHour,
		DefaultEndHour:   req.DefaultEndHour,
	}
	if err := h.templates.Update(r.Context(), tpl); err != nil {
		if errors.Is(err, availability.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update template", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	writeJSON(w, http.StatusOK, map[string]string{"template_id": templateID})
}

func (h *TemplateHandler) deleteTemplate(w http.ResponseWriter, r *http.Request, businessID string) {
	templateID := strings.TrimSpace(r.URL.Query().Get("id"))
	if templateID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.templates.Delete(r.Context(), businessID, templateID); err != nil {
		if errors.Is(err, availability.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete template", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	w.WriteHeader(http.StatusNoContent)
}

// Rules dispatches /api/v1/templates/rules: GET lists a template's weekly
// rules, POST adds one, DELETE removes one.
func (h *TemplateHandler) Rules(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	templateID, ok := h.ownedTemplateID(w, r, businessID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listRules(w, r, templateID)
	case http.MethodPost:
		h.createRule(w, r, templateID)
	case http.MethodDelete:
		h.deleteRule(w, r, templateID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TemplateHandler) listRules(w http.ResponseWriter, r *http.Request, templateID string) {
	rules, err := h.rules.ListByTemplate(r.Context(), templateID)
	if err != nil {
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, ruleResponse{
			RuleID:      rule.ID,
			DayOfWeek:   rule.DayOfWeek,
			StartTime:   availability.Clock(rule.StartMinute),
			EndTime:     availability.Clock(rule.EndMinute),
			IsAvailable: rule.IsAvailable,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TemplateHandler) createRule(w http.ResponseWriter, r *http.Request, templateID string) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		http.Error(w, "day_of_week must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
		return
	}
	startMinute, err := parseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, expected HH:MM", http.StatusBadRequest)
		return
	}
	endMinute, err := parseClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time, expected HH:MM", http.StatusBadRequest)
		return
	}
	if endMinute <= startMinute {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	isAvailable := true
	if req.IsAvailable != nil {
		isAvailable = *req.IsAvailable
	}
	rule := &model.WeeklyRule{
		TemplateID:  templateID,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		IsAvailable: isAvailable,
	}
	id, err := h.rules.Create(r.Context(), rule)
	if err != nil {
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	writeJSON(w, http.StatusCreated, map[string]string{"rule_id": id})
}

func (h *TemplateHandler) deleteRule(w http.ResponseWriter, r *http.Request, templateID string) {
	ruleID := strings.TrimSpace(r.URL.Query().Get("rule_id"))
	if ruleID == "" {
		http.Error(w, "rule_id required", http.StatusBadRequest)
		return
	}
	if err := h.rules.Delete(r.Context(), templateID, ruleID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	w.WriteHeader(http.StatusNoContent)
}

// Exceptions dispatches /api/v1/templates/exceptions: GET lists a template's
// date exceptions for a range, POST adds one, DELETE removes one.
func (h *TemplateHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	templateID, ok := h.ownedTemplateID(w, r, businessID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listExceptions(w, r, templateID)
	case http.MethodPost:
		h.createException(w, r, templateID)
	case http.MethodDelete:
		h.deleteException(w, r, templateID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TemplateHandler) listExceptions(w http.ResponseWriter, r *http.Request, templateID string) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.AddDate(0, 0, 90)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			http.Error(w, "invalid from, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = d
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			http.Error(w, "invalid to, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to = d
	}

	exceptions, err := h.exceptions.ListByTemplate(r.Context(), templateID, from, to)
	if err != nil {
		http.Error(w, "failed to list exceptions", http.StatusInternalServerError)
		return
	}
	items := make([]exceptionResponse, 0, len(exceptions))
	for _, exc := range exceptions {
		items = append(items, exceptionResponse{
			ExceptionID: exc.ID,
			Date:        exc.Date.Format("2006-01-02"),
			IsAvailable: exc.IsAvailable,
			Reason:      exc.Reason,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TemplateHandler) createException(w http.ResponseWriter, r *http.Request, templateID string) {
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	exc := &model.DateException{
		TemplateID:  templateID,
		Date:        date,
		IsAvailable: req.IsAvailable,
		Reason:      strings.TrimSpace(req.Reason),
	}
	id, err := h.exceptions.Create(r.Context(), exc)
	if err != nil {
		http.Error(w, "failed to create exception", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	writeJSON(w, http.StatusCreated, map[string]string{"exception_id": id})
}

func (h *TemplateHandler) deleteException(w http.ResponseWriter, r *http.Request, templateID string) {
	exceptionID := strings.TrimSpace(r.URL.Query().Get("exception_id"))
	if exceptionID == "" {
		http.Error(w, "exception_id required", http.StatusBadRequest)
		return
	}
	if err := h.exceptions.Delete(r.Context(), templateID, exceptionID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "exception not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete exception", http.StatusInternalServerError)
		return
	}
	h.slotCache.Invalidate(r.Context(), templateID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) businessID(w http.ResponseWriter, r *http.Request) (string, bool) {
	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		http.Error(w, "X-Business-Id header required", http.StatusBadRequest)
		return "", false
	}
	return businessID, true
}

// ownedTemplateID reads template_id from the query string and verifies the
// template belongs to the caller's business.
func (h *TemplateHandler) ownedTemplateID(w http.ResponseWriter, r *http.Request, businessID string) (string, bool) {
	templateID := strings.TrimSpace(r.URL.Query().Get("template_id"))
	if templateID == "" {
		http.Error(w, "template_id required", http.StatusBadRequest)
		return "", false
	}
	if _, err := h.templates.GetForBusiness(r.Context(), businessID, templateID); err != nil {
		if errors.Is(err, availability.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return "", false
		}
		http.Error(w, "failed to load template", http.StatusInternalServerError)
		return "", false
	}
	return templateID, true
}

func validateTemplateRequest(req *templateRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name required"
	}
	if req.DurationMinutes <= 0 {
		return "duration_minutes must be positive"
	}
	if req.DefaultStartHour < 0 || req.DefaultStartHour > 23 ||
		req.DefaultEndHour < 1 || req.DefaultEndHour > 24 {
		return "default hours out of range"
	}
	if req.DefaultEndHour <= req.DefaultStartHour {
		return "default_end_hour must be after default_start_hour"
	}
	return ""
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
