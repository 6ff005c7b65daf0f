package constants

// Application Information
const (
	AppName    = "Accounts Service"
	AppVersion = "1.0.0"
)

// Environment Types
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Default Application Settings
const (
	DefaultPort        = "8080"
	DefaultEnvironment = EnvDevelopment
)

// Token kinds carried in the JWT "kind" claim
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Revocation cache key prefix (redis)
const (
	CacheKeyPrefix       = "accounts:"
	CacheKeyRevokedToken = CacheKeyPrefix + "revoked:"
)
