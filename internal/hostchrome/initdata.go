package hostchrome

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// User is the host user described by init data.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// DisplayName joins the first and last names.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// InitData is the host's launch payload. Raw is forwarded verbatim to the
// backend, which is the party that verifies Hash.
type InitData struct {
	Raw        string
	User       *User
	AuthDate   time.Time
	StartParam string
	QueryID    string
	Hash       string
}

// Anonymous reports whether no host user is known.
func (d InitData) Anonymous() bool {
	return d.User == nil
}

// Theme is the host's theme signal, echoed to the renderer.
type Theme struct {
	ColorScheme string            `json:"color_scheme,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
}

// ParseInitData decodes URL-encoded init data. Empty input yields anonymous
// init data; malformed input yields an error.
func ParseInitData(raw string) (InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return InitData{}, nil
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("parse init data: %w", err)
	}

	data := InitData{
		Raw:        raw,
		StartParam: values.Get("start_param"),
		QueryID:    values.Get("query_id"),
		Hash:       values.Get("hash"),
	}

	if s := values.Get("auth_date"); s != "" {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("parse init data auth_date: %w", err)
		}
		data.AuthDate = time.Unix(secs, 0).UTC()
	}

	if s := values.Get("user"); s != "" {
		var u User
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			return InitData{}, fmt.Errorf("parse init data user: %w", err)
		}
		if u.ID == 0 {
			return InitData{}, fmt.Errorf("parse init data user: missing id")
		}
		data.User = &u
	}

	return data, nil
}
