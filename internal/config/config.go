package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultServer   = "warptalk.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultSTUNAlt  = "stun:stun1.l.google.com:19302"
	DefaultLanguage = "ja-JP"
)

// Config holds call client configuration
type Config struct {
	// Server is the signaling server host (or full ws:// / wss:// URL)
	Server string

	// WebSocketURL is constructed from Server
	WebSocketURL string

	// HTTPBaseURL is the http(s) counterpart used for room probes
	HTTPBaseURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// Language passed to the speech recognizer
	Language string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Language   string
}

// LoadDotEnv loads a .env file from the working directory when one exists.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstNonEmpty(opts.Server, os.Getenv("DOMAIN"), DefaultServer)

	wsURL, httpURL, err := buildURLs(server)
	if err != nil {
		return nil, err
	}

	stun := []string{DefaultSTUN, DefaultSTUNAlt}
	if s := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER")); s != "" {
		stun = []string{s}
	}

	cfg := &Config{
		Server:       server,
		WebSocketURL: wsURL,
		HTTPBaseURL:  httpURL,
		STUNServers:  stun,
		TURNServer:   firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:     firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:     firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:   opts.ForceRelay,
		Language:     firstNonEmpty(opts.Language, os.Getenv("LANGUAGE"), DefaultLanguage),
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// buildURLs accepts either a bare host[:port] or a full URL and returns the
// websocket endpoint plus the matching http base.
func buildURLs(server string) (string, string, error) {
	if !strings.Contains(server, "://") {
		return fmt.Sprintf("wss://%s/ws", server), fmt.Sprintf("https://%s", server), nil
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", "", fmt.Errorf("invalid server URL: %w", err)
	}

	var wsScheme, httpScheme string
	switch u.Scheme {
	case "ws", "http":
		wsScheme, httpScheme = "ws", "http"
	case "wss", "https":
		wsScheme, httpScheme = "wss", "https"
	default:
		return "", "", fmt.Errorf("unsupported server scheme: %s", u.Scheme)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if path == "" {
		path = "/ws"
	}
	return fmt.Sprintf("%s://%s%s", wsScheme, u.Host, path), fmt.Sprintf("%s://%s", httpScheme, u.Host), nil
}

// GetRoomURL returns the room probe endpoint for a room ID
func (c *Config) GetRoomURL(roomID string) string {
	return fmt.Sprintf("%s/rooms/%s", c.HTTPBaseURL, url.PathEscape(roomID))
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
