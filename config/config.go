/*
 * This file is part of the legacy-ril distribution (https://github.com/mlipscombe/legacy-ril).
 * Copyright (c) 2021 Mark Lipscombe.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, version 3.
 *
 * This program is distributed in the hope that it will be useful, but
 * WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
 * General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 */

package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config holds application configuration
type Config struct {
	ConfigFile  string
	LogLevel    string
	LogFile     string
	Bind        string
	ModemURL    string
	MQTTURL     string
	Timeout     time.Duration
	EventBuffer int
	Phonebook   bool
	HADiscovery bool
}

// fileConfig mirrors Config for the optional TOML or YAML file. Durations are
// strings so that "5s" style values work.
type fileConfig struct {
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	LogFile     string `toml:"log_file" yaml:"log_file"`
	Bind        string `toml:"bind" yaml:"bind"`
	Modem       string `toml:"modem" yaml:"modem"`
	MQTT        string `toml:"mqtt" yaml:"mqtt"`
	Timeout     string `toml:"timeout" yaml:"timeout"`
	EventBuffer int    `toml:"event_buffer" yaml:"event_buffer"`
	Phonebook   bool   `toml:"phonebook" yaml:"phonebook"`
	HADiscovery bool   `toml:"homeassistant" yaml:"homeassistant"`
}

const envPrefix = "RIL_BRIDGE_"

var knownKeys = map[string]bool{
	"log_level": true, "log_file": true, "bind": true, "modem": true, "mqtt": true,
	"timeout": true, "event_buffer": true, "phonebook": true, "homeassistant": true,
}

// Defaults returns the built-in configuration, before any file, environment
// or flag is applied.
func Defaults() *Config {
	return &Config{
		LogLevel:    "INFO",
		Bind:        "0.0.0.0:2112",
		ModemURL:    "unix:///dev/socket/rild",
		MQTTURL:     "mqtt://localhost:1883",
		Timeout:     5 * time.Second,
		EventBuffer: 32,
		Phonebook:   true,
		HADiscovery: true,
	}
}

// Load parses command-line flags and environment variables
func Load() (*Config, error) {
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse builds a Config from, in increasing precedence: defaults, the
// configuration file named by -config or RIL_BRIDGE_CONFIG, RIL_BRIDGE_*
// environment variables, and args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	base := Defaults()
	base.ConfigFile = lookupEnvOrString(envPrefix+"CONFIG", "")
	if path := configPath(args); path != "" {
		base.ConfigFile = path
	}
	if base.ConfigFile != "" {
		if err := base.loadFile(base.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	fs.StringVar(&cfg.ConfigFile, "config", base.ConfigFile, "optional TOML (or .yaml) configuration file")
	fs.StringVar(&cfg.LogLevel, "log-level", lookupEnvOrString(envPrefix+"LOG_LEVEL", base.LogLevel), "logging level")
	fs.StringVar(&cfg.LogFile, "log-file", lookupEnvOrString(envPrefix+"LOG_FILE", base.LogFile), "write logs to this file, rotated, instead of stderr")
	fs.StringVar(&cfg.Bind, "bind", lookupEnvOrString(envPrefix+"BIND", base.Bind), "address to bind for healthz and prometheus metrics endpoints, or \"false\" to disable")
	fs.StringVar(&cfg.ModemURL, "modem", lookupEnvOrString(envPrefix+"MODEM", base.ModemURL), "modem URI: unix:///path, tcp://host:port or serial:///dev/tty?baud=115200")
	fs.StringVar(&cfg.MQTTURL, "mqtt", lookupEnvOrString(envPrefix+"MQTT", base.MQTTURL), "MQTT URI, in the format mqtt[s]://[<user>:<password>]@<host>:<port>[/<prefix>], or \"false\" to disable")
	fs.DurationVar(&cfg.Timeout, "timeout", lookupEnvOrDuration(envPrefix+"TIMEOUT", base.Timeout), "response timeout for synchronous requests")
	fs.IntVar(&cfg.EventBuffer, "event-buffer", lookupEnvOrInt(envPrefix+"EVENT_BUFFER", base.EventBuffer), "events buffered per subscriber before dropping")
	fs.BoolVar(&cfg.Phonebook, "phonebook", lookupEnvOrBool(envPrefix+"PHONEBOOK", base.Phonebook), "publish phonebook records to MQTT")
	fs.BoolVar(&cfg.HADiscovery, "homeassistant", lookupEnvOrBool(envPrefix+"HOMEASSISTANT", base.HADiscovery), "enable Home Assistant autodiscovery")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.ModemURL) == "" {
		return errors.New("modem URI is required")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.EventBuffer < 0 {
		return fmt.Errorf("event buffer must not be negative, got %d", cfg.EventBuffer)
	}
	return nil
}

func (cfg *Config) loadFile(path string) error {
	raw, isDefined, err := decodeFile(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if isDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if isDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if isDefined("bind") {
		cfg.Bind = strings.TrimSpace(raw.Bind)
	}
	if isDefined("modem") {
		cfg.ModemURL = strings.TrimSpace(raw.Modem)
	}
	if isDefined("mqtt") {
		cfg.MQTTURL = strings.TrimSpace(raw.MQTT)
	}
	if isDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if isDefined("event_buffer") {
		cfg.EventBuffer = raw.EventBuffer
	}
	if isDefined("phonebook") {
		cfg.Phonebook = raw.Phonebook
	}
	if isDefined("homeassistant") {
		cfg.HADiscovery = raw.HADiscovery
	}
	return nil
}

// decodeFile reads TOML, or YAML when the extension says so. isDefined
// reports whether a top-level key was present, so that zero values in the
// file still override defaults.
func decodeFile(path string) (fileConfig, func(string) bool, error) {
	var raw fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return raw, nil, err
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return raw, nil, err
		}
		keys := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return raw, nil, err
		}
		var unknown []string
		for key := range keys {
			if !knownKeys[key] {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			log.Warnf("config %s: ignoring unknown keys %v", path, unknown)
		}
		return raw, func(key string) bool {
			_, ok := keys[key]
			return ok
		}, nil
	}

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return raw, nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warnf("config %s: ignoring unknown keys %v", path, undecoded)
	}
	return raw, func(key string) bool {
		return meta.IsDefined(key)
	}, nil
}

// configPath finds -config in args ahead of the real parse, since the file
// supplies the defaults the other flags are registered with.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// SetupLogging configures the logging level and destination
func (cfg *Config) SetupLogging() {
	log.SetFormatter(&log.TextFormatter{})
	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	ll, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
}

func lookupEnvOrString(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func lookupEnvOrBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		return false
	}
	return defaultVal
}

func lookupEnvOrInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Warnf("ignoring %s=%q: %v", key, val, err)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func lookupEnvOrDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Warnf("ignoring %s=%q: %v", key, val, err)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
