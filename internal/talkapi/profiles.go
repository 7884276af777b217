package talkapi

// Profile carries the per-group endpoints and the fixed headers that
// identify the official mobile client to the remote API.
type Profile struct {
	BaseURL   string
	TokenURL  string
	AppID     string
	UserAgent string
}

const androidUserAgent = "Dalvik/2.1.0 (Linux; U; Android 6.0; Samsung Galaxy S7 for keyaki messages Build/MRA58K)"

// DefaultProfiles maps each known group to its production endpoints.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"nogi": {
			BaseURL:   "https://api.n46.glastonr.net",
			TokenURL:  "https://api.n46.glastonr.net/v2/update_token",
			AppID:     "jp.co.sonymusic.communication.nogizaka 2.4",
			UserAgent: androidUserAgent,
		},
		"saku": {
			BaseURL:   "https://api.s46.glastonr.net",
			TokenURL:  "https://api.s46.glastonr.net/v2/update_token",
			AppID:     "jp.co.sonymusic.communication.sakurazaka 2.4",
			UserAgent: androidUserAgent,
		},
		"hina": {
			BaseURL:   "https://api.kh.glastonr.net",
			TokenURL:  "https://api.kh.glastonr.net/v2/update_token",
			AppID:     "jp.co.sonymusic.communication.keyakizaka 2.4",
			UserAgent: androidUserAgent,
		},
	}
}
