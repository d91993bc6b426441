package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Desk Configuration

[server]
# Listen address for the REST API
host = "0.0.0.0"
port = 8000
read_timeout = "15s"
write_timeout = "60s"
shutdown_timeout = "10s"

[database]
# SQLite application database path. Empty uses the config directory.
path = ""

[tickstore]
# MySQL DSN for the historical minute-tick store, e.g.
# "user:pass@tcp(localhost:3306)/historical_db?parseTime=true"
dsn = ""
database = "historical_db"
# How long instrument candle lookups are cached
cache_ttl = "5m"

[redis]
# Optional Redis price cache for multi-process deployments
enabled = false
addr = "localhost:6379"
password = ""
db = 0
ttl = "30s"

[auth]
# Secret used to sign JWT access tokens
jwt_secret = ""
# Access token lifetime
token_ttl = "30m"

[backtest]
# Missing-price policy: "carry_forward" or "skip"
missing_price_policy = "carry_forward"
# Maximum legs allowed per strategy
max_legs = 10

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Options Desk Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
