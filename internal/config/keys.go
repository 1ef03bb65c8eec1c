package config

// Durable configuration keys.
const (
	KeyMHTrackURL = "MH_TRACK_URL"
	KeyMHBasic    = "MH_BASIC"

	KeyPostiTokenURL = "POSTI_TOKEN_URL"
	KeyPostiBasic    = "POSTI_BASIC"
	KeyPostiTrackURL = "POSTI_TRACK_URL"

	KeyGLSFITrackURL = "GLS_FI_TRACK_URL"
	KeyGLSFIAPIKey   = "GLS_FI_API_KEY"
	KeyGLSFISenderID = "GLS_FI_SENDER_ID"
	KeyGLSFIMethod   = "GLS_FI_METHOD"
	KeyGLSTokenURL   = "GLS_TOKEN_URL"
	KeyGLSBasic      = "GLS_BASIC"
	KeyGLSTrackURL   = "GLS_TRACK_URL"

	KeyDHLTrackURL = "DHL_TRACK_URL"
	KeyDHLAPIKey   = "DHL_API_KEY"

	KeyBringTrackURL  = "BRING_TRACK_URL"
	KeyBringUID       = "BRING_UID"
	KeyBringKey       = "BRING_KEY"
	KeyBringClientURL = "BRING_CLIENT_URL"

	KeyBackoffBaseMinutes = "BULK_BACKOFF_MINUTES_BASE"
	KeyCacheBuster        = "TRK_CACHE_BUSTER"

	// KeyRateMinMsPrefix is followed by a throttle tag.
	KeyRateMinMsPrefix = "RATE_MINMS_"
)

// Defaults are the values SeedDefaults writes when a key is absent.
var Defaults = map[string]string{
	KeyMHTrackURL:         "https://extservices.matkahuolto.fi/mpaketti/public/tracking?ids={{code}}",
	KeyPostiTokenURL:      "https://oauth2.posti.com/oauth/token",
	KeyPostiTrackURL:      "https://api.posti.fi/tracking/7/shipments/trackingnumbers/{{code}}",
	KeyGLSTokenURL:        "https://api.gls-group.net/oauth2/v2/token",
	KeyGLSTrackURL:        "https://api.gls-group.net/track-and-trace-v1/tracking/simple/references/{{code}}",
	KeyDHLTrackURL:        "https://api-eu.dhl.com/track/shipments?trackingNumber={{code}}",
	KeyBringTrackURL:      "https://api.bring.com/tracking/api/v2/tracking.json?q={{code}}",
	KeyBringClientURL:     "https://example.com",
	KeyBackoffBaseMinutes: "5",
}

// RequiredKeys must be set for every carrier to work.
var RequiredKeys = []string{
	KeyMHTrackURL, KeyMHBasic,
	KeyPostiTokenURL, KeyPostiBasic, KeyPostiTrackURL,
	KeyDHLAPIKey, KeyDHLTrackURL,
	KeyBringTrackURL, KeyBringUID, KeyBringKey, KeyBringClientURL,
	KeyBackoffBaseMinutes,
}

// OptionalKeys tune or enable alternate paths.
var OptionalKeys = []string{
	KeyGLSFITrackURL, KeyGLSFIAPIKey, KeyGLSFISenderID, KeyGLSFIMethod,
	KeyGLSTokenURL, KeyGLSBasic, KeyGLSTrackURL,
	KeyRateMinMsPrefix + "POSTI",
	KeyRateMinMsPrefix + "GLS",
	KeyRateMinMsPrefix + "DHL",
	KeyRateMinMsPrefix + "MH",
	KeyRateMinMsPrefix + "BRING",
}
