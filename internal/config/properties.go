// Package config implements the layered properties store used across dimple.
//
// Configuration is merged from four layers in strict precedence, lowest to
// highest: a mandatory default properties file, an optional override file,
// the process environment, and an optional secrets file. Keys carrying the
// secret marker are isolated in a private store that the public getters
// never consult.
package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Provenance identifies the layer a configuration value originated from.
type Provenance string

const (
	ProvenanceDefault  Provenance = "default"
	ProvenanceOverride Provenance = "override"
	ProvenanceEnv      Provenance = "env"
	ProvenanceSecret   Provenance = "secret"
)

const (
	// OverrideFileEnv names the override properties file when no explicit
	// path is passed to Load.
	OverrideFileEnv = "OVERRIDE_FILE"

	// envDotToken in an environment variable name maps to a literal "." in
	// the resulting key, for environments that disallow dots in names.
	envDotToken = "_dot_"

	// envSkipMarker in an environment variable value causes the variable to
	// be skipped during the merge. Guards against unexpanded shell templates
	// leaking into configuration.
	envSkipMarker = "$"

	// secretMarker routes keys from the secrets file into the private store.
	secretMarker = "secret"
)

// LoadError reports a fatal failure to load the mandatory default file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config: loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type entry struct {
	value  string
	source Provenance
}

// Store holds the merged public configuration and the private secret store.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	public  map[string]entry
	secrets map[string]string
}

// Load merges configuration from the default file, an optional override file
// (falling back to the OVERRIDE_FILE environment variable when overrideFile
// is empty), the process environment, and an optional secrets file.
//
// A missing or unreadable default file is fatal. Missing override or secrets
// files are logged and skipped.
func Load(defaultFile, overrideFile, secretsFile string) (*Store, error) {
	s := &Store{
		public:  make(map[string]entry),
		secrets: make(map[string]string),
	}

	defaults, err := parsePropertiesFile(defaultFile)
	if err != nil {
		log.Error().Err(err).Str("path", defaultFile).Msg("Default properties file could not be loaded")
		return nil, &LoadError{Path: defaultFile, Err: err}
	}
	for k, v := range defaults {
		s.public[k] = entry{value: v, source: ProvenanceDefault}
	}
	log.Info().Str("path", defaultFile).Int("keys", len(defaults)).Msg("Default properties loaded")

	if overrideFile == "" {
		overrideFile = os.Getenv(OverrideFileEnv)
	}
	if overrideFile != "" {
		overrides, err := parsePropertiesFile(overrideFile)
		if err != nil {
			log.Warn().Err(err).Str("path", overrideFile).Msg("Override file not loaded, using defaults only")
		} else {
			for k, v := range overrides {
				s.public[k] = entry{value: v, source: ProvenanceOverride}
			}
			log.Info().Str("path", overrideFile).Int("keys", len(overrides)).Msg("Override properties loaded")
		}
	} else {
		log.Warn().Msg("No override file configured, using default properties only")
	}

	s.mergeEnvironment()

	if secretsFile != "" {
		s.mergeSecretsFile(secretsFile)
	}

	return s, nil
}

// mergeEnvironment overlays every process environment variable onto the
// public store, translating the dot token and skipping values that look like
// unexpanded templates.
func (s *Store) mergeEnvironment() {
	for _, kv := range os.Environ() {
		idx := strings.Index(kv, "=")
		if idx <= 0 {
			continue
		}
		name, value := kv[:idx], kv[idx+1:]
		if strings.Contains(value, envSkipMarker) {
			log.Debug().Str("name", name).Msg("Skipping environment variable with template marker in value")
			continue
		}
		key := strings.ReplaceAll(name, envDotToken, ".")
		s.public[key] = entry{value: value, source: ProvenanceEnv}
	}
}

// mergeSecretsFile splits the secrets file on the secret marker: marked keys
// go to the private store, the rest merge into the public store above the
// environment layer.
func (s *Store) mergeSecretsFile(path string) {
	props, err := parsePropertiesFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Secrets file not loaded")
		return
	}
	secretCount := 0
	for k, v := range props {
		if isSecretKey(k) {
			s.secrets[k] = v
			secretCount++
			continue
		}
		s.public[k] = entry{value: v, source: ProvenanceSecret}
	}
	log.Info().
		Str("path", path).
		Int("secret_keys", secretCount).
		Int("public_keys", len(props)-secretCount).
		Msg("Secrets properties loaded")
}

func isSecretKey(key string) bool {
	return strings.Contains(strings.ToLower(key), secretMarker)
}

// parsePropertiesFile reads a line-oriented key=value file. Blank lines and
// "#" comments are ignored, matching quotes around values are stripped, and
// malformed lines are logged and skipped.
func parsePropertiesFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			log.Warn().Str("path", path).Int("line", lineNo).Str("text", line).Msg("Skipping malformed property line")
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			log.Warn().Str("path", path).Int("line", lineNo).Msg("Skipping property line with empty key")
			continue
		}
		props[key] = unquote(strings.TrimSpace(line[idx+1:]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// GetString returns the value for key, or fallback when the key is absent.
func (s *Store) GetString(key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.public[key]; ok {
		return e.value
	}
	return fallback
}

// GetInt returns the value for key coerced to an int. Missing keys and
// coercion failures return fallback; coercion failures log a warning.
func (s *Store) GetInt(key string, fallback int) int {
	s.mu.RLock()
	e, ok := s.public[key]
	s.mu.RUnlock()
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(e.value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", e.value).Int("fallback", fallback).Msg("Property is not an integer, using fallback")
		return fallback
	}
	return n
}

// GetFloat returns the value for key coerced to a float64, with the same
// fallback behavior as GetInt.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	s.mu.RLock()
	e, ok := s.public[key]
	s.mu.RUnlock()
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(e.value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", e.value).Float64("fallback", fallback).Msg("Property is not a float, using fallback")
		return fallback
	}
	return f
}

// GetBool returns the value for key coerced to a bool. Recognized true values
// are {true, 1, yes, on} and false values {false, 0, no, off}, case
// insensitive. Anything else is a coercion failure and returns fallback.
func (s *Store) GetBool(key string, fallback bool) bool {
	s.mu.RLock()
	e, ok := s.public[key]
	s.mu.RUnlock()
	if !ok {
		return fallback
	}
	switch strings.ToLower(e.value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		log.Warn().Str("key", key).Str("value", e.value).Bool("fallback", fallback).Msg("Property is not a boolean, using fallback")
		return fallback
	}
}

// GetSecret looks up key in the private store only. Absent keys log a
// warning and return false.
func (s *Store) GetSecret(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.secrets[key]
	s.mu.RUnlock()
	if !ok {
		log.Warn().Str("key", key).Msg("Secret key not found")
		return "", false
	}
	return v, true
}

// SetString sets key in the in-memory public store. The change is not
// persisted to disk.
func (s *Store) SetString(key, value string) {
	s.mu.Lock()
	s.public[key] = entry{value: value, source: ProvenanceOverride}
	s.mu.Unlock()
}

// setSecret stores a value in the private store. Used by secret sources such
// as the Vault loader.
func (s *Store) setSecret(key, value string) {
	s.mu.Lock()
	s.secrets[key] = value
	s.mu.Unlock()
}

// Provenance reports the originating layer for key in the public store.
func (s *Store) Provenance(key string) (Provenance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.public[key]
	if !ok {
		return "", false
	}
	return e.source, true
}

// Keys returns the sorted public keys. Secret keys are never included.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.public))
	for k := range s.public {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
