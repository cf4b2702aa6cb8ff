package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/user"
)

type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=consumer farmer delivery"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type UpdateProfileRequest struct {
	Phone   string `json:"phone" validate:"omitempty,min=7,max=20"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role.String(),
		IsVerified: u.IsVerified,
		Phone:      u.Phone,
		Address:    u.Address,
		CreatedAt:  u.CreatedAt,
	}
}

type AuthHandler struct {
	service  user.Service
	sessions *Sessions
	validate *validator.Validate
}

func NewAuthHandler(service user.Service, sessions *Sessions) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/auth/signup", h.handleSignUp)
	router.Post("/auth/login", h.handleLogin)
	router.Post("/auth/verify-otp", h.handleVerifyOTP)
	router.Post("/auth/resend-otp", h.handleResendOTP)
	router.Post("/auth/logout", h.handleLogout)

	router.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireAuth)
		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile", h.handleUpdateProfile)
		r.Post("/profile/change-password", h.handleChangePassword)
	})
}

func (h *AuthHandler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var requestPayload SignUpRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	createdUser, err := h.service.SignUp(r.Context(), requestPayload.Email, requestPayload.Password, user.Role(requestPayload.Role), requestPayload.Name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign up user via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		if errors.Is(err, user.ErrEmailExists) {
			clientMessage = "Email already exists"
		} else {
			clientMessage = "Failed to sign up"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	// The account is created unverified; the session tracks it until the OTP
	// is confirmed.
	h.sessions.setPendingUser(w, r, createdUser.ID)

	respondWithJSON(w, http.StatusCreated, toUserResponse(createdUser))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	foundUser, err := h.service.Login(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to log in user via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		if errors.Is(err, user.ErrInvalidCredentials) {
			clientMessage = "Invalid email or password"
		} else {
			clientMessage = "Failed to log in"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	if !foundUser.IsVerified {
		h.sessions.setPendingUser(w, r, foundUser.ID)
		respondWithJSON(w, http.StatusForbidden, map[string]string{
			"error": "Account not verified, a new verification code has been sent",
		})
		return
	}

	h.sessions.setUser(w, r, foundUser.ID)

	respondWithJSON(w, http.StatusOK, toUserResponse(foundUser))
}

func (h *AuthHandler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	pendingID, ok := h.sessions.pendingUser(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "No verification in progress")
		return
	}

	var requestPayload VerifyOTPRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.service.VerifyOTP(r.Context(), pendingID, requestPayload.Code); err != nil {
		log.Warn().Err(err).Stringer("user_id", pendingID).Msg("Failed to verify OTP via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string

		switch {
		case errors.Is(err, user.ErrInvalidOTP):
			clientMessage = "Invalid verification code"
		case errors.Is(err, user.ErrOTPExpired):
			clientMessage = "Verification code has expired, request a new one"
		case errors.Is(err, user.ErrNotFound):
			clientMessage = "User not found"
		default:
			clientMessage = "Failed to verify code"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	h.sessions.setUser(w, r, pendingID)

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Account verified"})
}

func (h *AuthHandler) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	pendingID, ok := h.sessions.pendingUser(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "No verification in progress")
		return
	}

	if err := h.service.ResendOTP(r.Context(), pendingID); err != nil {
		log.Error().Err(err).Stringer("user_id", pendingID).Msg("Failed to resend OTP via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to resend verification code")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var requestPayload UpdateProfileRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.service.UpdateProfile(r.Context(), u.ID, requestPayload.Phone, requestPayload.Address); err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("Failed to update profile via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var requestPayload ChangePasswordRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), u.ID, requestPayload.NewPassword); err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("Failed to change password via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to change password")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
