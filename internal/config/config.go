package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Observer location. Validated here so invalid input never reaches the core.
	Latitude   float64        `env:"FORECAST_LAT" validate:"gte=-90,lte=90"`
	Longitude  float64        `env:"FORECAST_LON" validate:"gte=-180,lte=180"`
	ElevationM float64        `env:"FORECAST_ELEVATION_M" validate:"gte=0"`
	Location   *time.Location `env:"FORECAST_TIMEZONE" validate:"required"`
	TempUnit   string         `env:"TEMP_UNIT" validate:"oneof=F C"`
	WindUnit   string         `env:"WIND_UNIT" validate:"oneof=mph km/hr"`

	GridDir string `env:"GRID_DIR" validate:"required"`

	NWSBaseURL      string  `env:"NWS_BASE_URL" validate:"required,url"`
	NWSUserAgent    string  `env:"NWS_USER_AGENT" validate:"required"`
	NWSRPS          float64 `env:"NWS_RPS" validate:"gt=0"`
	NWSCacheSize    int     `env:"NWS_CACHE_SIZE" validate:"gt=0"`
	SWPCKpURL       string  `env:"SWPC_KP_URL" validate:"required,url"`
	SWPCForecastURL string  `env:"SWPC_FORECAST_URL" validate:"required,url"`

	HTTPTimeout         time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	RefreshInterval     time.Duration `env:"REFRESH_INTERVAL" validate:"gte=1m"`
	KpObservationWindow time.Duration `env:"KP_OBSERVATION_WINDOW" validate:"gt=0"`
	KpPredictionWindow  time.Duration `env:"KP_PREDICTION_WINDOW" validate:"gt=0"`
	PhaseSearchDays     int           `env:"PHASE_SEARCH_DAYS" validate:"gte=1"`
	EphemerisStep       time.Duration `env:"EPHEMERIS_STEP" validate:"gt=0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" validate:"required"`
	KafkaEnabled bool     `env:"KAFKA_ENABLED"`

	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		Latitude:   p.float("FORECAST_LAT", "39.236"),
		Longitude:  p.float("FORECAST_LON", "-120.026"),
		ElevationM: p.float("FORECAST_ELEVATION_M", "0"),
		Location:   p.location("FORECAST_TIMEZONE", "local"),
		TempUnit:   EnvOrDefault("TEMP_UNIT", "F"),
		WindUnit:   EnvOrDefault("WIND_UNIT", "mph"),

		GridDir: EnvOrDefault("GRID_DIR", "./forecast_maps"),

		NWSBaseURL:      strings.TrimRight(EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"), "/"),
		NWSUserAgent:    EnvOrDefault("NWS_USER_AGENT", "stargazing-forecast"),
		NWSRPS:          p.float("NWS_RPS", "1"),
		NWSCacheSize:    p.int("NWS_CACHE_SIZE", "100"),
		SWPCKpURL:       EnvOrDefault("SWPC_KP_URL", "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json"),
		SWPCForecastURL: EnvOrDefault("SWPC_FORECAST_URL", "https://services.swpc.noaa.gov/text/3-day-forecast.txt"),

		HTTPTimeout:         p.duration("HTTP_TIMEOUT", "15s"),
		RefreshInterval:     p.duration("REFRESH_INTERVAL", "1h"),
		KpObservationWindow: p.duration("KP_OBSERVATION_WINDOW", "48h"),
		KpPredictionWindow:  p.duration("KP_PREDICTION_WINDOW", "48h"),
		PhaseSearchDays:     p.int("PHASE_SEARCH_DAYS", "30"),
		EphemerisStep:       p.duration("EPHEMERIS_STEP", "10m"),

		KafkaBrokers: ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvOrDefault("KAFKA_TOPIC", "stargazing-forecasts"),

		HTTPAddr:        EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", "10s"),
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() func(*Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return func(cfg *Config) error {
		err := v.Struct(cfg)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg := fmt.Sprintf("invalid %s: must satisfy %s", fe.Field(), fe.Tag())
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			msgs = append(msgs, msg)
		}
		return errors.New(strings.Join(msgs, "; "))
	}
}

// EnvOrDefault returns the value of the environment variable key, or fallback
// if it is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// parser records the first conversion error so Load can report it by name.
type parser struct {
	err error
}

func (p *parser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
	}
}

func (p *parser) float(key, fallback string) float64 {
	s := EnvOrDefault(key, fallback)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s)
	}
	return v
}

func (p *parser) int(key, fallback string) int {
	s := EnvOrDefault(key, fallback)
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s)
	}
	return v
}

func (p *parser) duration(key, fallback string) time.Duration {
	s := EnvOrDefault(key, fallback)
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s)
	}
	return v
}

func (p *parser) location(key, fallback string) *time.Location {
	s := EnvOrDefault(key, fallback)
	if strings.EqualFold(s, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		p.fail(key, s)
		return nil
	}
	return loc
}
