package model

import "strings"

type SocialAccount struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Platform   string     `json:"platform"`
	APIKey     string     `json:"api_key"`
	ProfileKey *string    `json:"profile_key"`
	Active     bool       `json:"active"`
	CreatedAt  Timestamp  `json:"created_at"`
	UpdatedAt  *Timestamp `json:"updated_at"`
}

// MaskedAPIKey returns the API key with everything but the last four
// characters hidden.
func (a SocialAccount) MaskedAPIKey() string {
	return MaskKey(a.APIKey)
}

func MaskKey(key string) string {
	r := []rune(key)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return strings.Repeat("•", 9) + string(r)
}

// MaskedProfileKey is MaskedAPIKey for the optional profile key.
func (a SocialAccount) MaskedProfileKey() string {
	if a.ProfileKey == nil || *a.ProfileKey == "" {
		return ""
	}
	return MaskKey(*a.ProfileKey)
}

type CreateSocialAccountRequest struct {
	Platform   string  `json:"platform"`
	APIKey     string  `json:"api_key"`
	ProfileKey *string `json:"profile_key,omitempty"`
}
