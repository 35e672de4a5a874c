// Package config loads the TOML configuration described in spec.md §6. It
// is an ambient concern (the functional DB/Lua/XDT/GM surfaces it points at
// stay out of scope), but the loader itself follows the teacher's pattern of
// a single struct decoded once at startup and handed around by value,
// mirrored here on the original Rust program's config/mod.rs::from_file
// (argv[1]-overridable path, warn-and-default on a missing file, panic on a
// malformed one).
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// DefaultPath is used when no path is given on argv[1].
const DefaultPath = "config.toml"

// General holds options shared by both binaries (spec.md §6).
type General struct {
	LogPath          string `toml:"log_path"`
	LogWriteInterval int    `toml:"log_write_interval"`
	LiveCheckTime    int    `toml:"live_check_time"`
	ServerKey        string `toml:"server_key"`
	DBHost           string `toml:"db_host"`
	DBPort           int    `toml:"db_port"`
	DBUsername       string `toml:"db_username"`
	DBPassword       string `toml:"db_password"`
}

// Login holds login-server-only options.
type Login struct {
	ListenAddr string `toml:"listen_addr"`
	MOTDPath   string `toml:"motd_path"`
	MonitorURL string `toml:"monitor_url"`
	MonitorSubject string `toml:"monitor_subject"`
}

// Redis holds the optional presence-cache mirror's connection options
// (SPEC_FULL.md DOMAIN STACK: a write-through cache of derived buddy/shard
// directory state, never read back as authoritative).
type Redis struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	Database int    `toml:"database"`
	Prefix   string `toml:"prefix"`
}

// Shard holds shard-server-only options.
type Shard struct {
	ListenAddr             string `toml:"listen_addr"`
	ExternalAddr           string `toml:"external_addr"`
	LoginServerAddr        string `toml:"login_server_addr"`
	LoginServerConnInterval int   `toml:"login_server_conn_interval"`
	ShardID                int32  `toml:"shard_id"`
	NumChannels            int    `toml:"num_channels"`
	MaxChannelPop          int    `toml:"max_channel_pop"`
	VisibilityRange        int    `toml:"visibility_range"`
	AutosaveInterval       int    `toml:"autosave_interval"`
	VehicleDuration        int    `toml:"vehicle_duration"`
	MonitorURL             string `toml:"monitor_url"`
	MonitorSubject         string `toml:"monitor_subject"`
}

// Config is the top-level decoded document.
type Config struct {
	General General `toml:"general"`
	Login   Login   `toml:"login"`
	Shard   Shard   `toml:"shard"`
	Redis   Redis   `toml:"redis"`
}

// Default mirrors the original program's per-field defaults (spec.md §6),
// used both as a fallback when the file is missing and to seed zero values
// before decoding so an option omitted from the file still gets one.
func Default() Config {
	return Config{
		General: General{
			LogPath:          "server.log",
			LogWriteInterval: 5,
			LiveCheckTime:    30,
			DBPort:           27017,
		},
		Login: Login{
			ListenAddr: "127.0.0.1:23000",
			MOTDPath:   "motd.txt",
		},
		Shard: Shard{
			ListenAddr:              "127.0.0.1:23001",
			ExternalAddr:            "127.0.0.1:23001",
			LoginServerAddr:         "127.0.0.1:23000",
			LoginServerConnInterval: 10,
			ShardID:                 1,
			NumChannels:             1,
			MaxChannelPop:           100,
			VisibilityRange:         1,
			AutosaveInterval:        5,
			VehicleDuration:         10_080,
		},
		Redis: Redis{
			Address: "127.0.0.1:6379",
			Prefix:  "fusioncore",
		},
	}
}

// Load reads and decodes path, falling back to Default() (with a warning) if
// the file does not exist. A malformed file is a fatal startup error, same
// as the original's panic_log.
func Load(path string, log zerolog.Logger) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("config file missing, using defaults")
			return cfg, nil
		}
		return Config{}, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	log.Info().Str("path", path).Msg("loaded config")
	return cfg, nil
}

// PathFromArgs implements the argv[1]-overrides-path convention from
// spec.md §6 and the original config_init.
func PathFromArgs(args []string) string {
	if len(args) > 1 && args[1] != "" {
		return args[1]
	}
	return DefaultPath
}
