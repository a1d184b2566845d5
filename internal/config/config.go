package config

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

// Minimum lengths a credential must exceed before the integration is
// considered configured. These are plausibility checks, not validation.
const (
	minClientIDLength      = 10
	minAPIKeyLength        = 10
	minSpreadsheetIDLength = 5
)

// Environment variables read by FromEnv.
const (
	EnvClientID      = "GOOGLE_CLIENT_ID"
	EnvClientSecret  = "GOOGLE_CLIENT_SECRET"
	EnvAPIKey        = "GOOGLE_API_KEY"
	EnvSpreadsheetID = "GOOGLE_SPREADSHEET_ID"
	EnvDriveFolderID = "GOOGLE_DRIVE_FOLDER_ID"
)

var spreadsheetURL = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([^/]+)(?:/.*)?$`)

// placeholderMarkers identify folder IDs copied verbatim from setup
// instructions rather than from a real Drive folder.
var placeholderMarkers = []string{"YOUR_", "Input_"}

// Config holds the Google credentials supplied by the operator.
type Config struct {
	// ClientID is the OAuth 2.0 client identifier.
	ClientID string `toml:"client_id" json:"clientId"`

	// ClientSecret is only needed for installed-app clients; web clients
	// using PKCE may leave it empty.
	ClientSecret string `toml:"client_secret,omitempty" json:"clientSecret,omitempty"`

	// APIKey is used when loading the discovery documents.
	APIKey string `toml:"api_key" json:"apiKey"`

	// SpreadsheetID identifies the sheet holding the journal and the allow-list.
	SpreadsheetID string `toml:"spreadsheet_id" json:"spreadsheetId"`

	// DriveFolderID is the optional parent folder for uploaded images.
	DriveFolderID string `toml:"drive_folder_id,omitempty" json:"driveFolderId,omitempty"`
}

// Valid reports whether every required credential passes its length check.
func (c Config) Valid() bool {
	return len(c.ClientID) > minClientIDLength &&
		len(c.APIKey) > minAPIKeyLength &&
		len(c.SpreadsheetID) > minSpreadsheetIDLength
}

// HasDriveFolder reports whether uploads should be parented under DriveFolderID.
func (c Config) HasDriveFolder() bool {
	if strings.TrimSpace(c.DriveFolderID) == "" {
		return false
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(c.DriveFolderID, marker) {
			return false
		}
	}
	return true
}

// Normalize trims whitespace and reduces a spreadsheet URL to its ID.
func (c Config) Normalize() Config {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.SpreadsheetID = ParseSpreadsheetID(c.SpreadsheetID)
	c.DriveFolderID = strings.TrimSpace(c.DriveFolderID)
	return c
}

// Merge returns c with every non-empty field of override applied on top.
func (c Config) Merge(override Config) Config {
	if override.ClientID != "" {
		c.ClientID = override.ClientID
	}
	if override.ClientSecret != "" {
		c.ClientSecret = override.ClientSecret
	}
	if override.APIKey != "" {
		c.APIKey = override.APIKey
	}
	if override.SpreadsheetID != "" {
		c.SpreadsheetID = override.SpreadsheetID
	}
	if override.DriveFolderID != "" {
		c.DriveFolderID = override.DriveFolderID
	}
	return c
}

// Redacted returns a copy safe for display, with secrets masked.
func (c Config) Redacted() Config {
	c.APIKey = mask(c.APIKey)
	c.ClientSecret = mask(c.ClientSecret)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// ParseSpreadsheetID accepts either a bare spreadsheet ID or a full
// docs.google.com URL and returns the ID.
func ParseSpreadsheetID(s string) string {
	s = strings.TrimSpace(s)
	if match := spreadsheetURL.FindStringSubmatch(s); match != nil {
		return match[1]
	}
	return s
}

// FromEnv reads a Config from the GOOGLE_* environment variables.
func FromEnv() Config {
	return Config{
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		APIKey:        os.Getenv(EnvAPIKey),
		SpreadsheetID: os.Getenv(EnvSpreadsheetID),
		DriveFolderID: os.Getenv(EnvDriveFolderID),
	}.Normalize()
}

// Store holds the process configuration. The zero value is an unconfigured
// store ready for use.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a Store holding cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Set replaces the configuration. No validation is performed.
func (s *Store) Set(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// IsConfigured reports whether the current configuration is usable.
func (s *Store) IsConfigured() bool {
	return s.Get().Valid()
}
