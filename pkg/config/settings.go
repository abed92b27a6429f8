package config

import (
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
)

var defaultAttachmentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Settings are the process-wide knobs an operator may change at runtime.
type Settings struct {
	MaintenanceMode        bool
	MaintenanceBypassUsers []string
	MaxFileSizeMB          int64
	AllowedAttachmentTypes []string
	NotifyOnMessage        bool
}

func (s *Settings) MaxFileSizeBytes() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

func (s *Settings) IsAllowedAttachmentType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, allowed := range s.AllowedAttachmentTypes {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

// CanBypassMaintenance matches a username or user id against the bypass list.
func (s *Settings) CanBypassMaintenance(identifiers ...string) bool {
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		for _, allowed := range s.MaintenanceBypassUsers {
			if strings.EqualFold(allowed, id) {
				return true
			}
		}
	}
	return false
}

func loadSettings() *Settings {
	return &Settings{
		MaintenanceMode:        getEnvAsBool("MAINTENANCE_MODE", false),
		MaintenanceBypassUsers: getEnvAsList("MAINTENANCE_BYPASS_USERS", nil),
		MaxFileSizeMB:          getEnvAsInt64("MAX_FILE_SIZE_MB", 10),
		AllowedAttachmentTypes: getEnvAsList("ALLOWED_ATTACHMENT_TYPES", defaultAttachmentTypes),
		NotifyOnMessage:        getEnvAsBool("CHAT_NOTIFY_ON_MESSAGE", false),
	}
}

// Store holds the current Settings. Readers never block; Reload swaps the
// whole value.
type Store struct {
	current atomic.Pointer[Settings]
}

func NewStore(initial *Settings) *Store {
	s := &Store{}
	if initial == nil {
		initial = loadSettings()
	}
	s.current.Store(initial)
	return s
}

// LoadStore reads the environment (and .env) once.
func LoadStore() *Store {
	godotenv.Load()
	return NewStore(loadSettings())
}

func (s *Store) Get() *Settings {
	return s.current.Load()
}

// Reload re-reads .env, overriding variables already in the environment,
// and publishes a new Settings value.
func (s *Store) Reload() *Settings {
	godotenv.Overload()
	next := loadSettings()
	s.current.Store(next)
	return next
}

func (s *Store) Set(next *Settings) {
	s.current.Store(next)
}
