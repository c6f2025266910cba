package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type GoogleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type AccountLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Proxy    string `json:"proxy,omitempty"`
}

type LoginContinue struct {
	SessionHandle string `json:"session_handle"`
	Code          string `json:"code"`
}

type LoginResult struct {
	Status        string `json:"status"`
	SessionHandle string `json:"session_handle,omitempty"`
	AccountID     int64  `json:"account_id,omitempty"`
	Message       string `json:"message,omitempty"`
}
