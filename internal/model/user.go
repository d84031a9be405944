package model

// AuthClaims are the access-token claims this service relies on. Tokens are
// issued by the external accounts service with the same HMAC secret.
type AuthClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	TokenID  string `json:"jti"`
}
