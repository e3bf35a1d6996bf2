package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string
	ListenPort    string
	ServerName    string // Sent in the Server response header
	CorsOrigin    string // Access-Control-Allow-Origin value, empty disables the header

	// Store settings
	UserDbPath string // JSON array of user records
	FileDbDir  string // Directory of <owner>.<id>.db entries

	// Authentication settings
	JwtSecret     string // The actual secret key
	JwtSecretFile string // Path to the file containing the secret
	TokenLifetime time.Duration
	BcryptCost    int

	// Request limiting settings. RateLimit is the number of requests a client
	// may make per RateVanishTime; 0 disables limiting entirely.
	RateLimit      int
	RateVanishTime time.Duration
	Blacklist      []string // Remote IPs always rejected

	// TLS settings (optional, terminates above the router)
	TLSCertFile string
	TLSKeyFile  string
}

const (
	defaultAddress        = "0.0.0.0"
	defaultPort           = "8080"
	defaultServerName     = "fileserver@1.0.0"
	defaultUserDb         = "./users.json"
	defaultFileDb         = "./files"
	defaultJwtSecretFile  = ""
	defaultJwtKeyFile     = "./fileserver.key"
	defaultTokenLifetime  = 1 * time.Hour
	defaultBcryptCost     = 12
	defaultRateLimit      = 0
	defaultRateVanishTime = 1 * time.Second
)

// LoadConfig loads configuration from defaults, environment variables, and
// command-line flags. Command-line flags take precedence over environment
// variables, which take precedence over defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Use FILESERVER_ prefix for environment variables to avoid conflicts.
	flag.StringVar(&cfg.ListenAddress, "address", getEnv("FILESERVER_LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: FILESERVER_LISTEN_ADDRESS)")
	flag.StringVar(&cfg.ListenPort, "port", getEnv("FILESERVER_LISTEN_PORT", defaultPort), "Server listen port (Env: FILESERVER_LISTEN_PORT)")
	flag.StringVar(&cfg.ServerName, "server-name", getEnv("FILESERVER_SERVER_NAME", defaultServerName), "Value of the Server response header (Env: FILESERVER_SERVER_NAME)")
	flag.StringVar(&cfg.CorsOrigin, "cors", getEnv("FILESERVER_CORS_ORIGIN", ""), "Access-Control-Allow-Origin header value, empty disables CORS (Env: FILESERVER_CORS_ORIGIN)")
	flag.StringVar(&cfg.UserDbPath, "users-file", getEnv("FILESERVER_USERS_FILE", defaultUserDb), "Path to the JSON user database file (Env: FILESERVER_USERS_FILE)")
	flag.StringVar(&cfg.FileDbDir, "files-dir", getEnv("FILESERVER_FILES_DIR", defaultFileDb), "Path to the file database directory (Env: FILESERVER_FILES_DIR)")
	flag.StringVar(&cfg.JwtSecretFile, "jwt-secret-file", getEnv("FILESERVER_JWT_SECRET_FILE", defaultJwtSecretFile), "Path to file containing JWT secret key (overrides FILESERVER_JWT_SECRET env var) (Env: FILESERVER_JWT_SECRET_FILE)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", getEnvInt("FILESERVER_RATE_LIMIT", defaultRateLimit), "Requests per vanish interval before 429 responses, 0 disables (Env: FILESERVER_RATE_LIMIT)")
	rateVanishStr := flag.String("rate-limit-vanish-time", getEnv("FILESERVER_RATE_LIMIT_VANISH_TIME", defaultRateVanishTime.String()), "Interval in which rate-limit requests are allowed (e.g. 1s, 500ms) (Env: FILESERVER_RATE_LIMIT_VANISH_TIME)")
	blacklistStr := flag.String("blacklist", getEnv("FILESERVER_BLACKLIST", ""), "Comma-separated remote IPs to reject (Env: FILESERVER_BLACKLIST)")
	flag.StringVar(&cfg.TLSCertFile, "tls-cert", getEnv("FILESERVER_TLS_CERT", ""), "Path to TLS certificate, empty serves plain HTTP (Env: FILESERVER_TLS_CERT)")
	flag.StringVar(&cfg.TLSKeyFile, "tls-key", getEnv("FILESERVER_TLS_KEY", ""), "Path to TLS private key (Env: FILESERVER_TLS_KEY)")

	// Non-configurable defaults
	cfg.TokenLifetime = defaultTokenLifetime
	cfg.BcryptCost = defaultBcryptCost

	flag.Parse()

	var err error
	cfg.RateVanishTime, err = time.ParseDuration(*rateVanishStr)
	if err != nil {
		log.Printf("WARN: Invalid rate-limit-vanish-time duration '%s'. Using default %s. Error: %v", *rateVanishStr, defaultRateVanishTime, err)
		cfg.RateVanishTime = defaultRateVanishTime
	}
	if cfg.RateVanishTime <= 0 {
		log.Printf("WARN: rate-limit-vanish-time must be positive, got '%s'. Using default %s.", cfg.RateVanishTime, defaultRateVanishTime)
		cfg.RateVanishTime = defaultRateVanishTime
	}

	cfg.Blacklist = splitList(*blacklistStr)

	// --- JWT Secret Handling ---
	// Priority: File (CLI/Env) > Env Var > Default Key File > Generate
	var secretSource string

	// 1. Check explicit file path (from flag or FILESERVER_JWT_SECRET_FILE env)
	if cfg.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.JwtSecretFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				log.Printf("INFO: Loaded JWT secret from specified file: %s", cfg.JwtSecretFile)
				secretSource = fmt.Sprintf("File (%s)", cfg.JwtSecretFile)
			} else {
				log.Printf("WARN: Specified JWT secret file '%s' is empty or contains only whitespace. Ignoring.", cfg.JwtSecretFile)
			}
		} else {
			log.Printf("WARN: Failed to read specified JWT secret file '%s': %v. Checking other sources.", cfg.JwtSecretFile, err)
		}
	}

	// 2. Check environment variable (FILESERVER_JWT_SECRET) if not loaded from file
	if cfg.JwtSecret == "" {
		cfg.JwtSecret = strings.TrimSpace(getEnv("FILESERVER_JWT_SECRET", ""))
		if cfg.JwtSecret != "" {
			log.Printf("INFO: Loaded JWT secret from FILESERVER_JWT_SECRET environment variable.")
			secretSource = "Environment Variable (FILESERVER_JWT_SECRET)"
		}
	}

	// 3. Check default key file if still no secret
	if cfg.JwtSecret == "" {
		secretBytes, err := os.ReadFile(defaultJwtKeyFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				log.Printf("INFO: Loaded JWT secret from default key file: %s", defaultJwtKeyFile)
				secretSource = fmt.Sprintf("Default Key File (%s)", defaultJwtKeyFile)
			} else {
				log.Printf("WARN: Default JWT key file '%s' is empty or contains only whitespace. Will attempt generation.", defaultJwtKeyFile)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Failed to read default JWT key file '%s': %v. Will attempt generation.", defaultJwtKeyFile, err)
		}
	}

	// 4. Generate secret if still not found and save to default file
	if cfg.JwtSecret == "" {
		log.Printf("INFO: JWT secret not found via file, environment variable, or default key file. Generating a new secret...")
		newSecret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JwtSecret = newSecret

		err = os.WriteFile(defaultJwtKeyFile, []byte(newSecret), 0600)
		if err != nil {
			log.Printf("WARN: Failed to save generated JWT secret to '%s': %v. The server will use the generated key for this session only.", defaultJwtKeyFile, err)
			secretSource = "Generated (In Memory)"
		} else {
			log.Printf("INFO: Successfully generated and saved new JWT secret to: %s", defaultJwtKeyFile)
			secretSource = fmt.Sprintf("Generated & Saved (%s)", defaultJwtKeyFile)
		}
	}

	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("failed to obtain a valid JWT secret after checking all sources and attempting generation")
	}

	// --- Store Path Validation ---
	absUserDb, err := filepath.Abs(cfg.UserDbPath)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for users-file '%s': %w", cfg.UserDbPath, err)
	}
	cfg.UserDbPath = absUserDb

	absFileDb, err := filepath.Abs(cfg.FileDbDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for files-dir '%s': %w", cfg.FileDbDir, err)
	}
	cfg.FileDbDir = absFileDb

	// The user database must not point at a directory. The file itself may be
	// absent (created with a default admin on first run by the store).
	fileInfo, err := os.Stat(cfg.UserDbPath)
	if err == nil && fileInfo.IsDir() {
		return nil, fmt.Errorf("users-file path '%s' points to a directory, not a file", cfg.UserDbPath)
	}

	// TLS requires both halves.
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("tls-cert and tls-key must be provided together")
	}

	logConfiguration(cfg, secretSource)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("WARN: Invalid integer value for environment variable %s: '%s'. Using default: %d", key, value, fallback)
	}
	return fallback
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// logConfiguration prints the loaded configuration settings.
func logConfiguration(cfg *Config, secretSource string) {
	log.Println("--- Configuration ---")
	log.Printf("Server Address: %s", cfg.ListenAddress)
	log.Printf("Server Port: %s", cfg.ListenPort)
	log.Printf("Server Name: %s", cfg.ServerName)
	if cfg.CorsOrigin != "" {
		log.Printf("CORS Origin: %s", cfg.CorsOrigin)
	} else {
		log.Printf("CORS: disabled")
	}
	log.Printf("User Database File: %s", cfg.UserDbPath)
	log.Printf("File Database Directory: %s", cfg.FileDbDir)
	log.Printf("JWT Secret Source: %s", secretSource)
	log.Printf("JWT Token Lifetime: %s", cfg.TokenLifetime)
	log.Printf("Bcrypt Cost: %d", cfg.BcryptCost)
	if cfg.RateLimit > 0 {
		log.Printf("Rate Limit: %d requests per %s", cfg.RateLimit, cfg.RateVanishTime)
	} else {
		log.Printf("Rate Limit: disabled")
	}
	if len(cfg.Blacklist) > 0 {
		log.Printf("Blacklisted IPs: %s", strings.Join(cfg.Blacklist, ", "))
	}
	if cfg.TLSCertFile != "" {
		log.Printf("TLS: enabled (cert: %s)", cfg.TLSCertFile)
	} else {
		log.Printf("TLS: disabled")
	}
	log.Println("---------------------")
}

// generateRandomKey generates a cryptographically secure random key of the
// specified byte length and returns it as a hex-encoded string.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
