package realtime

import "os"

// Config is the realtime gateway's own environment. The gateway runs as
// a separate process and deliberately does not load the API's full
// configuration; it only needs NATS, the tenant and the JWT secret.
type Config struct {
	NatsURL      string
	TenantID     string
	JWTSecret    string
	RealtimePort string
}

func LoadConfig() Config {
	return Config{
		NatsURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		TenantID:     getEnv("TENANT_ID", "main"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		RealtimePort: getEnv("REALTIME_PORT", ":8081"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
