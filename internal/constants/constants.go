// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort          = "8000"
	DefaultDBPath        = "tidalarr.db"
	DefaultTokenPath     = "token.json"
	DefaultDownloadsDir  = "/downloads"
	DefaultPollInterval  = 60 * time.Second
	DefaultCheckInterval = time.Hour
	DefaultHTTPTimeout   = 5 * time.Minute
	ImageHTTPTimeout     = 30 * time.Second
	DefaultRetryCount    = 3
	DefaultRetryBase     = 1 * time.Second
	DefaultRequestRate   = 1.0 // provider requests per second
)

// Tidal API defaults
const (
	DefaultAPIURL      = "https://api.tidalhifi.com/v1"
	DefaultAuthURL     = "https://auth.tidal.com/v1/oauth2"
	DefaultLyricsURL   = "https://listen.tidal.com/v1"
	DefaultClientID    = "zU4XHVVkc2tDPo4t"
	DefaultCountryCode = "US"
	AuthScope          = "r_usr+w_usr+w_sub"
)

// Authentication timing
const (
	TokenExpiryMargin   = 5 * time.Minute
	DeviceAuthTimeout   = 5 * time.Minute
	DevicePollInterval  = 5 * time.Second
	DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	RefreshGrantType    = "refresh_token"
)

// Quality levels
const (
	QualityLossless      = "LOSSLESS"
	QualityHiResLossless = "HI_RES_LOSSLESS"
	QualityHigh          = "HIGH"
	QualityLow           = "LOW"
)

// Playback parameters
const (
	PlaybackModeStream    = "STREAM"
	AssetPresentationFull = "FULL"
)

// Cover art sizes, largest first
var CoverSizes = []int{640, 320, 160}

// Tidal CDN URLs
const (
	TidalImageBaseURL = "https://resources.tidal.com/images"
	TidalImageExt     = ".jpg"
)

// MIME Types
const (
	MimeTypeFLAC = "audio/flac"
	MimeTypeJPEG = "image/jpeg"
)

// Database
const (
	DownloadsTable = "downloads"
	NotFoundTable  = "not_found"
)

// File Extensions
const (
	ExtFLAC = ".flac"
	ExtJPG  = ".jpg"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"
