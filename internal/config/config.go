package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"screenshot-capturer/internal/capture"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

const Name = "screenshot-capturer"

type App struct {
	Name        string `json:"app_name"`
	Environment string `json:"environment"`
	Debug       bool   `json:"debug"`
	LogLevel    string `json:"log_level"`
}

type Capture struct {
	// Backend is either "playwright" or "chromedp".
	Backend   string `json:"backend"`
	Directory string `json:"directory"`

	ChromeDevtoolsProtocolURL string `json:"chrome_devtools_protocol_url"`
	ChromePath                string `json:"chrome_path"`
	SkipInstall               bool   `json:"skip_install"`

	PageTimeout    Duration `json:"page_timeout"`
	ReadyWait      Duration `json:"ready_wait"`
	SettleDelay    Duration `json:"settle_delay"`
	ViewportWidth  int      `json:"viewport_width"`
	ViewportHeight int      `json:"viewport_height"`
	Format         string   `json:"format"`
	Quality        int      `json:"quality"`

	ProcMountPoint string `json:"proc_mount_point"`
}

type S3 struct {
	Bucket      string `json:"bucket"`
	Prefix      string `json:"prefix"`
	EndpointURL string `json:"endpoint_url"`
	RetryOn     string `json:"retry_on"`
}

type Config struct {
	App

	Address                string   `json:"address"`
	TerminationGracePeriod Duration `json:"termination_grace_period"`
	Lameduck               Duration `json:"lameduck"`
	KeepAlive              bool     `json:"http_keepalive"`
	MaxConnections         int      `json:"max_connections"`
	MaxConcurrentCaptures  int64    `json:"max_concurrent_captures"`

	LogFile           string `json:"log_file"`
	PyroscopeEndpoint string `json:"pyroscope_endpoint"`

	Capture Capture `json:"capture"`
	S3      S3      `json:"s3"`
}

func Default() Config {
	o := capture.DefaultOptions()
	return Config{
		App: App{
			Name:        Name,
			Environment: "development",
			Debug:       false,
			LogLevel:    "INFO",
		},
		Address:                "0.0.0.0:8000",
		TerminationGracePeriod: Duration(10 * time.Second),
		Lameduck:               Duration(1 * time.Second),
		KeepAlive:              true,
		MaxConnections:         65532,
		MaxConcurrentCaptures:  4,
		Capture: Capture{
			Backend:        "playwright",
			Directory:      os.TempDir(),
			PageTimeout:    Duration(o.PageTimeout),
			ReadyWait:      Duration(o.ReadyWait),
			SettleDelay:    Duration(o.SettleDelay),
			ViewportWidth:  o.ViewportWidth,
			ViewportHeight: o.ViewportHeight,
			Format:         o.Format,
			Quality:        o.Quality,
		},
	}
}

// Load builds the configuration from defaults, then the JSON file found by
// Path(name), then environment variables (including those from ./.env).
func Load(name string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, xerrors.Errorf("failed to load .env: %w", err)
	}

	c := Default()
	path := Path(name)
	if err := LoadFile(path, &c); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Config{}, err
		}
		slog.Debug("no configuration file", "path", path)
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Name = envOrDefaultValue("APP_NAME", c.Name)
	c.Environment = envOrDefaultValue("ENV", c.Environment)
	c.Debug = envOrDefaultValue("DEBUG", c.Debug)
	c.LogLevel = envOrDefaultValue("LOG_LEVEL", envOrDefaultValue("GO_LOG", c.LogLevel))

	c.Address = envOrDefaultValue("ADDRESS", c.Address)
	c.TerminationGracePeriod = Duration(envOrDefaultValue("TERMINATION_GRACE_PERIOD", time.Duration(c.TerminationGracePeriod)))
	c.Lameduck = Duration(envOrDefaultValue("LAMEDUCK", time.Duration(c.Lameduck)))
	c.KeepAlive = envOrDefaultValue("HTTP_KEEPALIVE", c.KeepAlive)
	c.MaxConnections = envOrDefaultValue("MAX_CONNECTIONS", c.MaxConnections)
	c.MaxConcurrentCaptures = envOrDefaultValue("MAX_CONCURRENT_CAPTURES", c.MaxConcurrentCaptures)

	c.LogFile = envOrDefaultValue("LOG_FILE", c.LogFile)
	c.PyroscopeEndpoint = envOrDefaultValue("PYROSCOPE_ENDPOINT", c.PyroscopeEndpoint)

	c.Capture.Backend = envOrDefaultValue("CAPTURE_BACKEND", c.Capture.Backend)
	c.Capture.Directory = envOrDefaultValue("SCREENSHOT_DIR", c.Capture.Directory)
	c.Capture.ChromeDevtoolsProtocolURL = envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", c.Capture.ChromeDevtoolsProtocolURL)
	c.Capture.ChromePath = envOrDefaultValue("CHROME_PATH", c.Capture.ChromePath)
	c.Capture.SkipInstall = envOrDefaultValue("PLAYWRIGHT_SKIP_INSTALL", c.Capture.SkipInstall)
	c.Capture.PageTimeout = Duration(envOrDefaultValue("PAGE_TIMEOUT", time.Duration(c.Capture.PageTimeout)))
	c.Capture.ReadyWait = Duration(envOrDefaultValue("READY_WAIT", time.Duration(c.Capture.ReadyWait)))
	c.Capture.SettleDelay = Duration(envOrDefaultValue("SETTLE_DELAY", time.Duration(c.Capture.SettleDelay)))
	c.Capture.ViewportWidth = envOrDefaultValue("VIEWPORT_WIDTH", c.Capture.ViewportWidth)
	c.Capture.ViewportHeight = envOrDefaultValue("VIEWPORT_HEIGHT", c.Capture.ViewportHeight)
	c.Capture.Format = envOrDefaultValue("SCREENSHOT_FORMAT", c.Capture.Format)
	c.Capture.Quality = envOrDefaultValue("SCREENSHOT_QUALITY", c.Capture.Quality)
	c.Capture.ProcMountPoint = envOrDefaultValue("PROC_MOUNT_POINT", c.Capture.ProcMountPoint)

	c.S3.Bucket = envOrDefaultValue("S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = envOrDefaultValue("S3_PREFIX", c.S3.Prefix)
	c.S3.EndpointURL = envOrDefaultValue("S3_ENDPOINT_URL", c.S3.EndpointURL)
	c.S3.RetryOn = envOrDefaultValue("S3_RETRY_ON", c.S3.RetryOn)
}

func (c Config) Validate() error {
	switch c.Capture.Backend {
	case "playwright", "chromedp":
	default:
		return xerrors.Errorf("unknown capture backend %q", c.Capture.Backend)
	}
	switch c.Capture.Format {
	case "png", "jpeg":
	default:
		return xerrors.Errorf("unsupported screenshot format %q", c.Capture.Format)
	}
	if c.MaxConcurrentCaptures < 1 {
		return xerrors.Errorf("max concurrent captures must be positive, got %d", c.MaxConcurrentCaptures)
	}
	if c.Capture.ViewportWidth < 1 || c.Capture.ViewportHeight < 1 {
		return xerrors.Errorf("invalid viewport %dx%d", c.Capture.ViewportWidth, c.Capture.ViewportHeight)
	}
	return nil
}

// CaptureOptions converts the capture section into capturer options.
func (c Config) CaptureOptions() capture.Options {
	o := capture.DefaultOptions()
	o.PageTimeout = time.Duration(c.Capture.PageTimeout)
	o.ReadyWait = time.Duration(c.Capture.ReadyWait)
	o.SettleDelay = time.Duration(c.Capture.SettleDelay)
	o.ViewportWidth = c.Capture.ViewportWidth
	o.ViewportHeight = c.Capture.ViewportHeight
	o.Format = c.Capture.Format
	o.Quality = c.Capture.Quality
	return o
}

var ErrNotFound = errors.New("configuration file not found")

// Path returns the first existing <location>/<name>.json, or the one in the
// project config directory when none exists.
func Path(name string) string {
	locations := []string{
		"config",
		filepath.Join("~", ".config", Name),
		filepath.Join("/etc", Name),
	}

	for _, location := range locations {
		path := filepath.Join(expandHome(location), name+".json")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(locations[0], name+".json")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// LoadFile decodes the JSON file at path into v. Fields absent from the file
// keep their current value.
func LoadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return xerrors.Errorf("%w: %s", ErrNotFound, path)
		}
		return xerrors.Errorf("failed to read configuration file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return xerrors.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	return nil
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}
