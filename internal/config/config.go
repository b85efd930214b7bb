package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverMongo = "mongo"
	DriverMySQL = "mysql"
)

// Route names used by PROTECTED_ROUTES.
const (
	RouteBooksList    = "books.list"
	RouteBooksGet     = "books.get"
	RouteBooksUpdate  = "books.update"
	RouteBooksCreate  = "books.create"
	RouteBorrow       = "borrow"
	RouteBorrowedList = "borrowed.list"
	RouteReturn       = "return"
)

var KnownRoutes = []string{
	RouteBooksList, RouteBooksGet, RouteBooksUpdate, RouteBooksCreate,
	RouteBorrow, RouteBorrowedList, RouteReturn,
}

var defaultProtectedRoutes = strings.Join([]string{
	RouteBooksCreate, RouteBooksUpdate, RouteBorrow, RouteBorrowedList, RouteReturn,
}, ",")

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr    string
	GRPCAddr    string
	CORSOrigins []string

	StoreDriver   string
	StoreTimeout  time.Duration
	MongoURI      string
	MongoDatabase string
	MySQLDSN      string
	RedisAddr     string

	JWTSecret string
	JWTTTL    time.Duration

	ProtectedRoutes map[string]bool
}

// LoadEnv loads .env into the process environment when the file exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using system environment")
		return
	}
	logrus.Info(".env file loaded")
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	LoadEnv()

	var errs *multierror.Error

	storeTimeout, err := time.ParseDuration(GetEnv("STORE_TIMEOUT", "5s"))
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("STORE_TIMEOUT: %w", err))
	}
	jwtTTL, err := time.ParseDuration(GetEnv("JWT_TTL", "1h"))
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("JWT_TTL: %w", err))
	}

	cfg := Config{
		Env:             strings.ToLower(GetEnv("APP_ENV", EnvDevelopment)),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		HTTPAddr:        GetEnv("HTTP_ADDR", ":5000"),
		GRPCAddr:        GetEnv("GRPC_ADDR", ":50051"),
		CORSOrigins:     splitList(GetEnv("CORS_ORIGINS", "http://localhost:5173")),
		StoreDriver:     strings.ToLower(GetEnv("STORE_DRIVER", DriverMongo)),
		StoreTimeout:    storeTimeout,
		MongoURI:        GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   GetEnv("MONGO_DATABASE", "library"),
		MySQLDSN:        GetEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/library?parseTime=true"),
		RedisAddr:       GetEnv("REDIS_ADDR"),
		JWTSecret:       GetEnv("JWT_SECRET"),
		JWTTTL:          jwtTTL,
		ProtectedRoutes: toSet(splitList(GetEnv("PROTECTED_ROUTES", defaultProtectedRoutes))),
	}

	if err := cfg.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return cfg, errs.ErrorOrNil()
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs *multierror.Error

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = multierror.Append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = multierror.Append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo driver"))
		}
	case DriverMySQL:
		if c.MySQLDSN == "" {
			errs = multierror.Append(errs, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = multierror.Append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = multierror.Append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if len(c.CORSOrigins) == 0 {
		errs = multierror.Append(errs, errors.New("CORS_ORIGINS must list at least one origin"))
	}
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			errs = multierror.Append(errs, errors.New("CORS_ORIGINS must not contain * when cookies are used"))
		}
	}
	if c.HTTPAddr == "" {
		errs = multierror.Append(errs, errors.New("HTTP_ADDR is required"))
	}

	known := toSet(KnownRoutes)
	for route := range c.ProtectedRoutes {
		if !known[route] {
			errs = multierror.Append(errs, fmt.Errorf("PROTECTED_ROUTES: unknown route %q", route))
		}
	}

	return errs.ErrorOrNil()
}

func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CookieSameSite follows the session cookie policy: cross-site capable in production,
// strict everywhere else.
func (c Config) CookieSameSite() string {
	if c.IsProduction() {
		return "None"
	}
	return "Strict"
}

func (c Config) CookieSecure() bool {
	return c.IsProduction()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
