package controllers

import (
	"errors"
	json "github.com/goccy/go-json"
	"net/http"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"streamflix/internal/services"
)

const (
	maxRequestBodySize = 64 << 10 // 64 KB
	leaderboardKey     = "leaderboard"
)

type ApiController struct {
	logger   providers.Logger
	service  services.LedgerServiceInterface
	cache    providers.CacheProviderInterface
	identity providers.IdentityProviderInterface
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type userMetricsResponse struct {
	Success bool `json:"success"`
	*models.UserMetrics
}

type historyResponse struct {
	Success bool                  `json:"success"`
	UserID  string                `json:"userId"`
	History []models.HistoryEntry `json:"history"`
}

type leaderboardResponse struct {
	Success     bool                      `json:"success"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

func NewApiController(logger providers.Logger, service services.LedgerServiceInterface, cache providers.CacheProviderInterface, identity providers.IdentityProviderInterface) *ApiController {
	return &ApiController{
		logger:   logger,
		service:  service,
		cache:    cache,
		identity: identity,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	gson, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (ac *ApiController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		ac.logger.Errorf(providers.GetLogTypeByRequestType(r.Method), "%s %s failed: %s", r.Method, r.URL.Path, err)
		msg = models.ErrStorageFailure.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, r *http.Request, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		ac.writeError(w, r, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ac.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

// authenticatedUser resolves the caller and writes 401 when there is none.
func (ac *ApiController) authenticatedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := ac.identity.Resolve(r)
	if err != nil {
		ac.writeError(w, r, err)
		return "", false
	}
	if id.UserID == "" {
		ac.writeError(w, r, models.ErrUnauthorized)
		return "", false
	}
	return id.UserID, true
}

func (ac *ApiController) ReceiveSeeding(w http.ResponseWriter, r *http.Request) {
	id, err := ac.identity.Resolve(r)
	if err != nil {
		ac.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var payload models.SeedingReport
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req, err := payload.ToCreditRequest(id.UserID, id.Telegram)
	if err != nil {
		ac.writeError(w, r, err)
		return
	}

	result, err := ac.service.Credit(r.Context(), req)
	if err != nil {
		ac.writeError(w, r, err)
		return
	}
	ac.logger.Debugf(providers.TypePost, "Credited %s with %.2f for %s (total %.2f, duplicate %t)",
		req.UserID, result.TokensEarned, req.ContentID, result.TotalTokens, result.Duplicate)
	writeJSON(w, http.StatusOK, result)
}

func (ac *ApiController) GetUserMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := ac.authenticatedUser(w, r)
	if !ok {
		return
	}
	metrics, err := ac.service.GetUserMetrics(r.Context(), userID)
	if err != nil {
		ac.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userMetricsResponse{Success: true, UserMetrics: metrics})
}

func (ac *ApiController) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := ac.authenticatedUser(w, r)
	if !ok {
		return
	}
	history, err := ac.service.GetHistory(r.Context(), userID)
	if err != nil {
		ac.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, UserID: userID, History: history})
}

func (ac *ApiController) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ac.serveFromCacheOrCompute(w, r, leaderboardKey, func() (any, error) {
		board, err := ac.service.Leaderboard(r.Context())
		if err != nil {
			return nil, err
		}
		return leaderboardResponse{Success: true, Leaderboard: board}, nil
	})
}
