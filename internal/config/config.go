package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Default configuration values
const (
	DefaultServer   = "ws://localhost:3000/ws"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultCodec    = protocol.CodecMsgPack
	DefaultPort     = "3000"
	DefaultLogLevel = "info"
)

var (
	ErrInvalidServer  = errors.New("invalid server URL")
	ErrRelayNeedsTURN = errors.New("cannot force relay mode without TURN server configured")
)

// Config holds participant configuration
type Config struct {
	// ServerURL is the hub websocket endpoint, without the codec parameter.
	ServerURL string

	// Codec is the wire codec requested from the hub.
	Codec string

	// DisplayName is sent with join; empty lets the hub pick one.
	DisplayName string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// StartCamera starts camera and microphone right after joining.
	StartCamera bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server      string
	Insecure    bool
	Codec       string
	DisplayName string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	StartCamera bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstNonEmpty(opts.Server, os.Getenv("MESHCALL_SERVER"), DefaultServer)
	serverURL, err := websocketURL(server, opts.Insecure)
	if err != nil {
		return nil, err
	}

	codec := firstNonEmpty(opts.Codec, os.Getenv("MESHCALL_CODEC"), DefaultCodec)
	if _, err := protocol.CodecByName(codec); err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:   serverURL,
		Codec:       codec,
		DisplayName: firstNonEmpty(opts.DisplayName, os.Getenv("MESHCALL_NAME")),
		STUNServer:  firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:  firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:    firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  opts.ForceRelay,
		StartCamera: opts.StartCamera,
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, ErrRelayNeedsTURN
	}

	return cfg, nil
}

// DialURL returns the websocket URL including the codec selection.
func (c *Config) DialURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	q := u.Query()
	q.Set("codec", c.Codec)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ServerConfig holds hub process configuration.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}

// LoadServer reads PORT and LOG_LEVEL.
func LoadServer() *ServerConfig {
	return &ServerConfig{
		Port:     firstNonEmpty(os.Getenv("PORT"), DefaultPort),
		LogLevel: firstNonEmpty(os.Getenv("LOG_LEVEL"), DefaultLogLevel),
	}
}

// websocketURL accepts a bare host, an http(s) URL or a ws(s) URL and
// returns a ws(s) URL ending in /ws.
func websocketURL(server string, insecure bool) (string, error) {
	if !strings.Contains(server, "://") {
		scheme := "wss"
		if insecure {
			scheme = "ws"
		}
		server = scheme + "://" + server
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidServer, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServer, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidServer)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
