/*
config.go - Service configuration and immutable snapshots

PURPOSE:
  Loads configuration from an optional file (TOML/YAML/JSON), a .env file and
  BOOKING_* environment variables, and freezes it into a Snapshot. The
  Snapshot is never mutated; Holder swaps in a new one on reload.

SOURCES (later wins):
  1. Defaults below
  2. Config file (-config flag, BOOKING_CONFIG, or ./booking.toml)
  3. Environment: BOOKING_<SECTION>_<KEY>, e.g. BOOKING_STORAGE_DRIVER
  4. Legacy group variables: BOOKING_GROUP_<NAME>_ID / _NAME / _ENABLED

SEE ALSO:
  - snapshot.go: lookups used by the pipeline (allow-list, owners, apartments)
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the raw, unmarshalled configuration.
type Config struct {
	Env        string          `mapstructure:"env"`
	LogLevel   string          `mapstructure:"log_level"`
	Timezone   string          `mapstructure:"timezone"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	Groups     []GroupConfig   `mapstructure:"groups"`
	Owners     []string        `mapstructure:"owners"`
	Apartments ApartmentConfig `mapstructure:"apartments"`
	Names      NamesConfig     `mapstructure:"names"`
	Schedule   ScheduleConfig  `mapstructure:"schedule"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Ledger     LedgerConfig    `mapstructure:"ledger"`
	Backfill   BackfillConfig  `mapstructure:"backfill"`
	Chat       ChatConfig      `mapstructure:"chat"`
	Export     ExportConfig    `mapstructure:"export"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GroupConfig binds one chat group to the apartment it reports for.
type GroupConfig struct {
	ChatID    string `mapstructure:"chat_id"`
	Apartment string `mapstructure:"apartment"`
	Enabled   bool   `mapstructure:"enabled"`
}

type ApartmentConfig struct {
	// Order is the fixed report priority; unknown apartments follow in discovery order.
	Order []string `mapstructure:"order"`
	// Keywords maps short names typed in commands to apartments ("sky" -> "SKY HOUSE BSD").
	Keywords map[string]string `mapstructure:"keywords"`
}

type NamesConfig struct {
	Exact    map[string]string `mapstructure:"exact"`
	Contains map[string]string `mapstructure:"contains"`
	Promo    []string          `mapstructure:"promo"`
}

type ScheduleConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DailyReport   string        `mapstructure:"daily_report"`   // "HH:MM"
	MonthlyReport string        `mapstructure:"monthly_report"` // "HH:MM" on MonthlyDay
	MonthlyDay    int           `mapstructure:"monthly_day"`
	Cleanup       string        `mapstructure:"cleanup"` // "HH:MM"
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite | postgres | memory
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`
}

type LedgerConfig struct {
	Backend       string `mapstructure:"backend"` // store | redis
	RedisURL      string `mapstructure:"redis_url"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type BackfillConfig struct {
	Limit int `mapstructure:"limit"`
}

type ChatConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ExportConfig struct {
	Dir             string `mapstructure:"dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSPrefix       string `mapstructure:"gcs_prefix"`
	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`
	BigQueryTable   string `mapstructure:"bigquery_table"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// DefaultApartmentOrder is the report priority used by the operators.
var DefaultApartmentOrder = []string{
	"TREEPARK BSD",
	"SKY HOUSE BSD",
	"SPRINGWOOD",
	"EMERALD BINTARO",
	"TOKYO RIVERSIDE PIK2",
	"SERPONG GARDEN",
	"TRANSPARK BINTARO",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "Asia/Jakarta")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("apartments.order", DefaultApartmentOrder)
	v.SetDefault("apartments.keywords", map[string]string{
		"sky":        "SKY HOUSE BSD",
		"skyhouse":   "SKY HOUSE BSD",
		"tree":       "TREEPARK BSD",
		"treepark":   "TREEPARK BSD",
		"emerald":    "EMERALD BINTARO",
		"springwood": "SPRINGWOOD",
		"serpong":    "SERPONG GARDEN",
		"tokyo":      "TOKYO RIVERSIDE PIK2",
		"transpark":  "TRANSPARK BINTARO",
	})
	v.SetDefault("names.exact", map[string]string{"apk": "APK", "kr": "KR"})
	v.SetDefault("names.contains", map[string]string{"amel": "Amel"})
	v.SetDefault("names.promo", []string{"apk"})
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.daily_report", "12:00")
	v.SetDefault("schedule.monthly_report", "10:00")
	v.SetDefault("schedule.monthly_day", 1)
	v.SetDefault("schedule.cleanup", "02:00")
	v.SetDefault("schedule.check_interval", time.Minute)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "bookings.db")
	v.SetDefault("ledger.backend", "store")
	v.SetDefault("ledger.retention_days", 30)
	v.SetDefault("backfill.limit", 500)
	v.SetDefault("chat.timeout", 15*time.Second)
	v.SetDefault("export.dir", "exports")

	// Keys without a meaningful default still need registering, otherwise
	// AutomaticEnv never surfaces them through Unmarshal.
	for _, key := range []string{
		"owners", "storage.database_url", "ledger.redis_url",
		"chat.base_url", "chat.token", "chat.webhook_secret",
		"export.gcs_bucket", "export.gcs_prefix", "export.bigquery_project",
		"export.bigquery_dataset", "export.bigquery_table", "export.credentials_file",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from file and env and returns a validated Snapshot.
// An empty path falls back to BOOKING_CONFIG, then ./booking.{toml,yaml,json}.
func Load(path string) (*Snapshot, error) {
	// .env is optional; real environment variables still win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("BOOKING_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("booking")
	}

	v.SetEnvPrefix("BOOKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Groups = mergeGroups(c.Groups, groupsFromEnv(os.Environ()))
	return NewSnapshot(c)
}

var groupEnvPattern = regexp.MustCompile(`^BOOKING_GROUP_([A-Z0-9_]+)_ID$`)

// groupsFromEnv reads BOOKING_GROUP_<NAME>_ID style variables.
func groupsFromEnv(environ []string) []GroupConfig {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok {
			env[k] = val
		}
	}

	var groups []GroupConfig
	for k, id := range env {
		m := groupEnvPattern.FindStringSubmatch(k)
		if m == nil || strings.TrimSpace(id) == "" {
			continue
		}
		name := env["BOOKING_GROUP_"+m[1]+"_NAME"]
		if name == "" {
			name = strings.ReplaceAll(m[1], "_", " ")
		}
		groups = append(groups, GroupConfig{
			ChatID:    strings.TrimSpace(id),
			Apartment: strings.TrimSpace(name),
			Enabled:   !strings.EqualFold(env["BOOKING_GROUP_"+m[1]+"_ENABLED"], "false"),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ChatID < groups[j].ChatID })
	return groups
}

// mergeGroups lets env groups override file groups with the same chat id.
func mergeGroups(file, env []GroupConfig) []GroupConfig {
	out := make([]GroupConfig, 0, len(file)+len(env))
	seen := make(map[string]int)
	for _, g := range append(append([]GroupConfig{}, file...), env...) {
		if i, ok := seen[g.ChatID]; ok {
			out[i] = g
			continue
		}
		seen[g.ChatID] = len(out)
		out = append(out, g)
	}
	return out
}
