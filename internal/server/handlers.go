package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
)

const dateLayout = "2006-01-02"

// categoryDTO is the JSON shape of a category.
type categoryDTO struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
}

// expenseDTO is the JSON shape of an expense.
type expenseDTO struct {
	Date        string          `json:"date"`
	Merchant    string          `json:"merchant"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	EmailID     string          `json:"email_id,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	CategoryID  *int64          `json:"category_id,omitempty"`
}

func toCategoryDTO(cat model.Category) categoryDTO {
	dto := categoryDTO{ID: cat.ID, UserID: cat.UserID, Name: cat.Name}
	if !cat.CreatedAt.IsZero() {
		dto.CreatedAt = cat.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toExpenseDTO(e model.Expense) expenseDTO {
	dto := expenseDTO{
		ID:          e.ID,
		UserID:      e.UserID,
		Date:        e.Date.Format(dateLayout),
		Amount:      e.Amount,
		Merchant:    e.Merchant,
		Description: e.Description,
		Category:    e.CategoryName,
		CategoryID:  e.CategoryID,
		EmailID:     e.EmailID,
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// userIDQuery reads the required user_id query parameter.
func userIDQuery(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return id, err == nil && id > 0
}

// pathID reads the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) googleAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing email or refresh token")
		return
	}

	user, err := s.storage.UpsertUser(r.Context(), req.Email, req.RefreshToken)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	// First registration gets the starter category set
	existing, err := s.storage.GetCategories(r.Context(), user.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if len(existing) == 0 {
		for _, name := range model.DefaultCategories {
			if _, err := s.storage.CreateCategory(r.Context(), user.ID, name); err != nil {
				writeStorageError(w, err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_id": user.ID})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	categories, err := s.storage.GetCategories(r.Context(), userID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	dtos := make([]categoryDTO, 0, len(categories))
	for _, cat := range categories {
		dtos = append(dtos, toCategoryDTO(cat))
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": dtos})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		UserID int64  `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "missing name or user_id")
		return
	}

	cat, err := s.storage.CreateCategory(r.Context(), req.UserID, req.Name)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "category": toCategoryDTO(*cat)})
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	if err := s.storage.UpdateCategory(r.Context(), id, req.Name); err != nil {
		writeStorageError(w, err)
		return
	}

	cat, err := s.storage.GetCategoryByID(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": toCategoryDTO(*cat)})
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := s.storage.DeleteCategory(r.Context(), id); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	filter := service.ExpenseFilter{Limit: 100}
	query := r.URL.Query()

	if raw := query.Get("start_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		filter.StartDate = &parsed
	}
	if raw := query.Get("end_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		filter.EndDate = &parsed
	}
	if raw := query.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	expenses, err := s.storage.GetExpenses(r.Context(), userID, filter)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	dtos := make([]expenseDTO, 0, len(expenses))
	for _, e := range expenses {
		dtos = append(dtos, toExpenseDTO(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"expenses": dtos})
}

// expenseRequest is the mutable subset of an expense accepted from clients.
type expenseRequest struct {
	Date        *string          `json:"date"`
	Merchant    *string          `json:"merchant"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	CategoryID  *int64           `json:"category_id"`
	UserID      int64            `json:"user_id"`
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.Date == nil || req.Amount == nil || req.Merchant == nil {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	date, err := time.Parse(dateLayout, *req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	expense := &model.Expense{
		UserID:     req.UserID,
		Date:       date,
		Amount:     *req.Amount,
		Merchant:   *req.Merchant,
		CategoryID: req.CategoryID,
	}
	if req.Description != nil {
		expense.Description = *req.Description
	}

	if err := s.storage.CreateExpense(r.Context(), expense); err != nil {
		writeStorageError(w, err)
		return
	}

	created, err := s.storage.GetExpenseByID(r.Context(), expense.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "expense": toExpenseDTO(*created)})
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	expense, err := s.storage.GetExpenseByID(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Date != nil {
		date, parseErr := time.Parse(dateLayout, *req.Date)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		expense.Date = date
	}
	if req.Amount != nil {
		expense.Amount = *req.Amount
	}
	if req.Merchant != nil {
		expense.Merchant = *req.Merchant
	}
	if req.Description != nil {
		expense.Description = *req.Description
	}
	if req.CategoryID != nil {
		expense.CategoryID = req.CategoryID
	}

	if err := s.storage.UpdateExpense(r.Context(), expense); err != nil {
		writeStorageError(w, err)
		return
	}

	updated, err := s.storage.GetExpenseByID(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "expense": toExpenseDTO(*updated)})
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.storage.DeleteExpense(r.Context(), id); err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	expenses, err := s.storage.GetExpenses(r.Context(), userID, service.ExpenseFilter{StartDate: &monthStart})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	summary := buildDashboardSummary(expenses)

	topMerchants := make(map[string]decimal.Decimal, len(summary.TopMerchants))
	for _, m := range summary.TopMerchants {
		topMerchants[m.Merchant] = m.Amount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_spending":       summary.TotalSpending,
		"spending_by_category": summary.SpendingByCategory,
		"top_merchants":        topMerchants,
	})
}

// buildDashboardSummary rolls a slice of expenses up into the dashboard
// aggregates. Merchants are ranked by amount with ties broken by name, and
// only the top five are kept.
func buildDashboardSummary(expenses []model.Expense) service.DashboardSummary {
	summary := service.DashboardSummary{
		SpendingByCategory: make(map[string]decimal.Decimal),
	}
	byMerchant := make(map[string]decimal.Decimal)

	for _, e := range expenses {
		summary.TotalSpending = summary.TotalSpending.Add(e.Amount)

		name := e.CategoryName
		if name == "" {
			name = "Uncategorized"
		}
		summary.SpendingByCategory[name] = summary.SpendingByCategory[name].Add(e.Amount)
		byMerchant[e.Merchant] = byMerchant[e.Merchant].Add(e.Amount)
	}

	merchants := make([]service.MerchantTotal, 0, len(byMerchant))
	for merchant, amount := range byMerchant {
		merchants = append(merchants, service.MerchantTotal{Merchant: merchant, Amount: amount})
	}
	sort.Slice(merchants, func(i, j int) bool {
		if merchants[i].Amount.Equal(merchants[j].Amount) {
			return merchants[i].Merchant < merchants[j].Merchant
		}
		return merchants[i].Amount.GreaterThan(merchants[j].Amount)
	})
	if len(merchants) > 5 {
		merchants = merchants[:5]
	}
	summary.TopMerchants = merchants

	return summary
}

func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}

	var points []service.ForecastPoint
	var err error
	if category := r.URL.Query().Get("category"); category != "" {
		points, err = s.forecaster.PredictCategory(r.Context(), userID, category, days)
	} else {
		points, err = s.forecaster.Predict(r.Context(), userID, days)
	}
	if errors.Is(err, common.ErrModelUnavailable) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}

	type pointDTO struct {
		Date     string  `json:"date"`
		Category string  `json:"category,omitempty"`
		Amount   float64 `json:"amount"`
		Lower    float64 `json:"lower_bound"`
		Upper    float64 `json:"upper_bound"`
	}

	dtos := make([]pointDTO, 0, len(points))
	for _, p := range points {
		dtos = append(dtos, pointDTO{
			Date:     p.Date.Format(dateLayout),
			Category: p.Category,
			Amount:   p.Amount,
			Lower:    p.Lower,
			Upper:    p.Upper,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"predictions": dtos})
}

func (s *Server) budgetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	report, err := s.recommender.Recommend(r.Context(), userID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	type recommendationDTO struct {
		Category           string  `json:"category"`
		Reason             string  `json:"reason"`
		CurrentPercent     float64 `json:"current_percentage"`
		RecommendedPercent float64 `json:"recommended_percentage"`
		RecommendedBudget  float64 `json:"recommended_budget"`
	}

	recs := make([]recommendationDTO, 0, len(report.Recommendations))
	for _, rec := range report.Recommendations {
		recs = append(recs, recommendationDTO{
			Category:           rec.Category,
			Reason:             rec.Reason,
			CurrentPercent:     rec.CurrentPercent,
			RecommendedPercent: rec.RecommendedPercent,
			RecommendedBudget:  rec.RecommendedBudget,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"predicted_monthly_expense": report.PredictedMonthlyExpense,
		"recommendations":           recs,
	})
}

func (s *Server) processMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		UserID    int64  `json:"user_id"`
		SinceDays int    `json:"since_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MessageID != "" {
		if req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, "user_id is required with message_id")
			return
		}

		result, err := s.engine.ProcessMessage(r.Context(), req.UserID, req.MessageID)
		if err != nil {
			writeStorageError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":     result.Status,
			"reason":     result.Reason,
			"expense_id": result.ExpenseID,
		})
		return
	}

	sinceDays := req.SinceDays
	if sinceDays <= 0 {
		sinceDays = 1
	}

	summary, err := s.engine.FetchAndProcess(r.Context(), time.Now().AddDate(0, 0, -sinceDays))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":     summary.Users,
		"messages":  summary.Messages,
		"persisted": summary.Persisted,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}
