package web

// DefaultListen is where the relay listens when nothing else is configured.
const DefaultListen = ":8024"

// Config is the http and websocket listener.
type Config struct {
	Listen      string   `json:"listen"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// Validate fills in the default listen address.
func (config *Config) Validate(path string) error {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	return nil
}
