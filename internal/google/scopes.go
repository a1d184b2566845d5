package google

// Google endpoints used by the client libraries.
const (
	DriveDiscoveryURL      = "https://www.googleapis.com/discovery/v1/apis/drive/v3/rest"
	SheetsDiscoveryURL     = "https://sheets.googleapis.com/$discovery/rest?version=v4"
	UserInfoURL            = "https://www.googleapis.com/oauth2/v3/userinfo"
	OpenIDConfigurationURL = "https://accounts.google.com/.well-known/openid-configuration"
)

// DefaultDiscoveryDocs are loaded when the API client initializes.
var DefaultDiscoveryDocs = []string{DriveDiscoveryURL, SheetsDiscoveryURL}

// DefaultOAuthScopes grant access to files the app creates and to the
// journal spreadsheet, plus the signed-in user's email for access checks.
var DefaultOAuthScopes = []string{
	// Files created by this app only
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",

	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
}
