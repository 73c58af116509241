package main

// API essential types

type Song struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Filename        string   `json:"filename"`
	LoveCount       int      `json:"love_count"`
	IsLoved         bool     `json:"is_loved"`
}

type BackgroundImage struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	IsActive bool   `json:"is_active"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type Settings struct {
	AutoChangeBackground bool `json:"auto_change_background"`
	AllowRegistration    bool `json:"allow_registration"`
}

// API request types

type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type SongUpdateRequest struct {
	Title  *string `json:"title"`
	Artist *string `json:"artist"`
}

type SettingsUpdateRequest struct {
	AutoChangeBackground *bool `json:"auto_change_background"`
	AllowRegistration    *bool `json:"allow_registration"`
}

// API response types

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type MeResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type RegistrationAllowedResponse struct {
	AllowRegistration bool `json:"allow_registration"`
}

type AutoChangeBackgroundResponse struct {
	AutoChangeBackground bool `json:"auto_change_background"`
}

type LoveResponse struct {
	Loved   bool   `json:"loved"`
	Message string `json:"message,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
