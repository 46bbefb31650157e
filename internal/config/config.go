// Package config handles configuration for the CLI, including defaults,
// JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the StoreFlight CLI.
//
// Fields:
//   - KeyID / IssuerID / PrivateKeyPath: App Store Connect API key
//     identifiers and the path to the .p8 private key.
//   - APIBaseURL: App Store Connect API base URL.
//   - StoreDir: local checkout directory of the artifact store.
//   - StoreURL / StoreToken: artifact store remote and its access token.
//   - StoreAuthorName / StoreAuthorEmail: commit author for store commits.
//   - UploadConcurrency: max in-flight chunk uploads.
//   - UploadPollInterval / ProcessingPollInterval: sleep between status
//     polls (time.Duration values).
type Config struct {
	KeyID          string
	IssuerID       string
	PrivateKeyPath string
	APIBaseURL     string

	StoreDir         string
	StoreURL         string
	StoreToken       string
	StoreAuthorName  string
	StoreAuthorEmail string

	UploadConcurrency      int
	UploadPollInterval     time.Duration
	ProcessingPollInterval time.Duration
}

// LoadDefaults populates c with sensible defaults. API credentials have no
// defaults and must come from JSON or flags.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://api.appstoreconnect.apple.com/v1"
	c.StoreDir = "./artifacts"
	c.StoreAuthorName = "storeflight"
	c.StoreAuthorEmail = "storeflight@localhost"
	c.UploadConcurrency = 4
	c.UploadPollInterval = 30 * time.Second
	c.ProcessingPollInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
