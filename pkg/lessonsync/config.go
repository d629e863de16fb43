package lessonsync

import "net/http"

// DefaultBaseURL points at a local analysis backend.
const DefaultBaseURL = "http://localhost:8000"

type Config struct {
	DBPath     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     Logger
	Storage    Storage
	Analysis   Analysis
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithAnalysis(analysis Analysis) Option {
	return func(c *Config) {
		c.Analysis = analysis
	}
}

func defaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
	}
}
