package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds every runtime option. Each option can be set with a long
// flag or its environment variable; flags win over the environment.
type Config struct {
	DBDriver   string `long:"dbdriver" env:"DB_DRIVER" default:"mysql" description:"Database driver {mysql, sqlite, memory}"`
	DBHost     string `long:"dbhost" env:"DB_HOST" default:"localhost" description:"MySQL host"`
	DBPort     string `long:"dbport" env:"DB_PORT" default:"3306" description:"MySQL port"`
	DBUser     string `long:"dbuser" env:"DB_USER" default:"authbackend" description:"MySQL user"`
	DBPassword string `long:"dbpass" env:"DB_PASSWORD" default:"authbackend_pass" description:"MySQL password"`
	DBName     string `long:"dbname" env:"DB_NAME" default:"authbackend" description:"MySQL database name"`
	SQLitePath string `long:"sqlitepath" env:"SQLITE_PATH" default:"auth.db" description:"SQLite database file"`

	Port           string `long:"port" env:"PORT" default:"8080" description:"HTTP listen port"`
	BaseURL        string `long:"baseurl" env:"BASE_URL" default:"http://localhost:8080" description:"Public URL used to build reset links"`
	AllowedOrigins string `long:"allowedorigins" env:"ALLOWED_ORIGINS" default:"*" description:"Comma separated CORS origins"`
	APIKey         string `long:"apikey" env:"API_KEY" description:"Require this X-API-Key on /api/v1 when set"`

	JWTSecret     string `long:"jwtsecret" env:"JWT_SECRET" description:"HMAC secret used to sign bearer tokens"`
	SessionKey    string `long:"sessionkey" env:"SESSION_KEY" description:"Hex encoded session cookie authentication key (random when empty)"`
	CSRFKey       string `long:"csrfkey" env:"CSRF_KEY" description:"Hex encoded 32 byte CSRF key (random when empty)"`
	DisableCSRF   bool   `long:"disablecsrf" env:"DISABLE_CSRF" description:"Disable CSRF protection on form routes"`
	SecureCookies bool   `long:"securecookies" env:"SECURE_COOKIES" description:"Mark session and CSRF cookies Secure"`

	ResetTokenTTL  time.Duration `long:"resettokenttl" env:"RESET_TOKEN_TTL" default:"6h" description:"Lifetime of a password reset request"`
	PurgeSchedule  string        `long:"purgeschedule" env:"PURGE_SCHEDULE" default:"@hourly" description:"Cron schedule of the reset request purge job"`
	PurgeRetention time.Duration `long:"purgeretention" env:"PURGE_RETENTION" default:"24h" description:"How long dead reset requests are kept"`

	Argon2Memory  uint32 `long:"argon2memory" env:"ARGON2_MEMORY" default:"65536" description:"Argon2id memory cost in KiB"`
	Argon2Time    uint32 `long:"argon2time" env:"ARGON2_TIME" default:"1" description:"Argon2id iterations"`
	Argon2Threads uint8  `long:"argon2threads" env:"ARGON2_THREADS" default:"4" description:"Argon2id parallelism"`

	SMTPHost       string `long:"smtphost" env:"SMTP_HOST" description:"SMTP host; reset links are only logged when empty"`
	SMTPPort       string `long:"smtpport" env:"SMTP_PORT" default:"465" description:"SMTP port"`
	SMTPUser       string `long:"smtpuser" env:"SMTP_USER" description:"SMTP user"`
	SMTPPass       string `long:"smtppass" env:"SMTP_PASS" description:"SMTP password"`
	SMTPFrom       string `long:"smtpfrom" env:"SMTP_FROM" default:"Accounts <noreply@example.com>" description:"From address of outgoing mail"`
	SMTPSkipVerify bool   `long:"smtpskipverify" env:"SMTP_SKIP_VERIFY" description:"Skip SMTP server certificate verification"`

	LogDir     string `long:"logdir" env:"LOG_DIR" default:"logs" description:"Directory to log output"`
	DebugLevel string `long:"debuglevel" env:"DEBUG_LEVEL" default:"info" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- or <subsystem>=<level>,..."`
}

// Load parses args (without the program name) on top of the environment
// and the defaults, then validates the result.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations that flag parsing cannot.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable must be set")
	}
	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("reset token ttl must be positive, got %v", c.ResetTokenTTL)
	}
	if c.PurgeRetention < 0 {
		return fmt.Errorf("purge retention must not be negative, got %v", c.PurgeRetention)
	}
	if c.Argon2Memory == 0 || c.Argon2Time == 0 || c.Argon2Threads == 0 {
		return errors.New("argon2 parameters must be non-zero")
	}
	if err := validateDebugLevel(c.DebugLevel); err != nil {
		return err
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// DSN returns the MySQL data source name. Times are read and written in UTC.
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName +
		"?parseTime=true&loc=UTC&charset=utf8mb4"
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// validateDebugLevel accepts either a single level or a comma separated
// list of subsystem=level pairs. Subsystem names are checked when the
// levels are applied.
func validateDebugLevel(debugLevel string) error {
	if !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		return nil
	}
	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		if !validLogLevel(fields[1]) {
			return fmt.Errorf("the specified debug level [%v] is invalid", fields[1])
		}
	}
	return nil
}
