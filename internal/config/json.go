package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrop/storeflight/internal/flagx"
	"github.com/dmitrop/storeflight/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	KeyID          string `json:"key_id"`
	IssuerID       string `json:"issuer_id"`
	PrivateKeyPath string `json:"private_key_path"`
	APIBaseURL     string `json:"api_base_url"`

	StoreDir         string `json:"store_dir"`
	StoreURL         string `json:"store_url"`
	StoreToken       string `json:"store_token"`
	StoreAuthorName  string `json:"store_author_name"`
	StoreAuthorEmail string `json:"store_author_email"`

	UploadConcurrency      int            `json:"upload_concurrency"`
	UploadPollInterval     timex.Duration `json:"upload_poll_interval"`
	ProcessingPollInterval timex.Duration `json:"processing_poll_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set fields into the provided Config.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.KeyID != "" {
		cfg.KeyID = jc.KeyID
	}
	if jc.IssuerID != "" {
		cfg.IssuerID = jc.IssuerID
	}
	if jc.PrivateKeyPath != "" {
		cfg.PrivateKeyPath = jc.PrivateKeyPath
	}
	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.StoreDir != "" {
		cfg.StoreDir = jc.StoreDir
	}
	if jc.StoreURL != "" {
		cfg.StoreURL = jc.StoreURL
	}
	if jc.StoreToken != "" {
		cfg.StoreToken = jc.StoreToken
	}
	if jc.StoreAuthorName != "" {
		cfg.StoreAuthorName = jc.StoreAuthorName
	}
	if jc.StoreAuthorEmail != "" {
		cfg.StoreAuthorEmail = jc.StoreAuthorEmail
	}
	if jc.UploadConcurrency > 0 {
		cfg.UploadConcurrency = jc.UploadConcurrency
	}
	if jc.UploadPollInterval.Std() > 0 {
		cfg.UploadPollInterval = jc.UploadPollInterval.Std()
	}
	if jc.ProcessingPollInterval.Std() > 0 {
		cfg.ProcessingPollInterval = jc.ProcessingPollInterval.Std()
	}
}
