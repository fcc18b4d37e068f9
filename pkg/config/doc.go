// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Identity provider delegation settings are
// loaded separately through a DelegationLoader so they are re-validated on every
// request instead of once at startup.
//
// # Configuration Structure
//
// Server settings:
//
//	KEYHOLE_HOST="0.0.0.0"
//	KEYHOLE_PORT="8080"
//	KEYHOLE_HEALTH_PORT="9090"
//	KEYHOLE_SITE_URL="https://sho.rt"
//
// Storage settings:
//
//	KEYHOLE_STORAGE_TYPE="postgres"  # postgres, sqlite, redis
//	KEYHOLE_DATABASE_URL="postgres://localhost/keyhole"
//	KEYHOLE_HISTORY_TABLE="submissions"
//	KEYHOLE_REDIS_URL="redis://localhost:6379"
//	KEYHOLE_STATE_STORE="redis"      # redis, memory
//
// Session and flood settings:
//
//	KEYHOLE_SESSION_SECRET="<at least 32 characters>"
//	KEYHOLE_ALLOWLIST_FILE="/etc/keyhole/users.yaml"
//	KEYHOLE_FLOOD_DELAY_SECONDS="15"
//	KEYHOLE_FLOOD_IP_WHITELIST="10.0.0.1, 10.0.0.2"
//
// Delegation settings (read per request):
//
//	OIDC_PROVIDER_URL="https://idp.example.com"
//	OIDC_CLIENT_ID="keyhole"
//	OIDC_CLIENT_SECRET=""            # optional, PKCE public client when empty
//	OIDC_SCOPES="openid profile email"
//	OIDC_ERROR_MESSAGE="User account not found."
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	delegation, err := config.EnvDelegationLoader{}.Load()
//	if errors.Is(err, config.ErrUnconfigured) {
//		// fall back to native login
//	}
//
// # Related Packages
//
//   - pkg/auth: Consumes DelegationLoader
//   - pkg/observability: Uses observability configuration
package config
