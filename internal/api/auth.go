package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fundboard/pkg/fundboard"
)

const (
	tokenIssuerName    = "fundboard"
	defaultTokenExpiry = 24 * time.Hour
)

type contextKey string

const userIDKey contextKey = "user_id"

type tokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// newTokenIssuer falls back to a random per-process secret when none is configured.
func newTokenIssuer(secret []byte, expiry time.Duration) *tokenIssuer {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generate jwt secret: %v", err))
		}
	}
	if expiry <= 0 {
		expiry = defaultTokenExpiry
	}
	return &tokenIssuer{secret: secret, expiry: expiry, now: time.Now}
}

// signJWT creates a signed HS256 token for the user.
func (t *tokenIssuer) signJWT(user *fundboard.User) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.expiry)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"name": user.Username,
		"iss":  tokenIssuerName,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"jti":  uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// validateJWT checks signature, algorithm, issuer and expiry and returns the user id.
func (t *tokenIssuer) validateJWT(tokenString string) (int64, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuerName), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

func (h *handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		userID, err := h.tokens.validateJWT(strings.TrimSpace(token))
		if err != nil {
			h.logger.Debug("rejected token", "request_id", requestID(r), "err", err)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		setLoggedUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// currentUserID returns the authenticated user id; only valid behind authMiddleware.
func currentUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *fundboard.User `json:"user"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.core.RegisterUser(r.Context(), fundboard.Credentials{Username: payload.Username, Password: payload.Password})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	h.issueToken(w, r, http.StatusCreated, user)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.core.Authenticate(r.Context(), fundboard.Credentials{Username: payload.Username, Password: payload.Password})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	h.issueToken(w, r, http.StatusOK, user)
}

func (h *handler) issueToken(w http.ResponseWriter, r *http.Request, status int, user *fundboard.User) {
	token, expiresAt, err := h.tokens.signJWT(user)
	if err != nil {
		writeErrorResponse(w, r, fmt.Errorf("sign token: %w", err))
		return
	}
	writeJSON(w, status, authResponse{Token: token, ExpiresAt: expiresAt.UTC(), User: user})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.core.GetUser(r.Context(), currentUserID(r))
	if err != nil {
		if fundboard.IsErrorCode(err, fundboard.ErrCodeNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
