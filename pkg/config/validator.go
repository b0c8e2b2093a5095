package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func ValidLogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error"}
}

func ValidLogFormats() []string {
	return []string{"auto", "console", "json"}
}

func ValidProviders() []string {
	return []string{ProviderOpenAI, ProviderEcho}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateSession()...)
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validatePetData()...)
	errs = append(errs, c.validateRedis()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Value: c.Server.Addr, Message: "must not be empty"})
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.shutdown_timeout", Value: c.Server.ShutdownTimeout, Message: "must not be negative"})
	}
	if c.Server.GenerationTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.generation_timeout", Value: c.Server.GenerationTimeout, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateSession() []ValidationError {
	var errs []ValidationError
	if c.Session.Shards < 1 || c.Session.Shards > 4096 {
		errs = append(errs, ValidationError{Field: "session.shards", Value: c.Session.Shards, Message: "must be between 1 and 4096"})
	}
	if c.Session.TombstoneTTL < 0 {
		errs = append(errs, ValidationError{Field: "session.tombstone_ttl", Value: c.Session.TombstoneTTL, Message: "must not be negative (0 keeps tombstones forever)"})
	}
	if c.Session.TombstoneTTL > 0 && c.Session.TombstoneEvictionInterval <= 0 {
		errs = append(errs, ValidationError{Field: "session.tombstone_eviction_interval", Value: c.Session.TombstoneEvictionInterval, Message: "must be positive when tombstone_ttl is set"})
	}
	return errs
}

func (c *Config) validateEngine() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidProviders(), c.Engine.Provider) {
		errs = append(errs, ValidationError{Field: "engine.provider", Value: c.Engine.Provider, Message: fmt.Sprintf("must be one of %v", ValidProviders())})
		return errs
	}
	if c.Engine.Provider == ProviderOpenAI {
		if strings.TrimSpace(c.Engine.APIKey) == "" {
			errs = append(errs, ValidationError{Field: "engine.api_key", Value: "", Message: "is required for the openai provider"})
		}
		if c.Engine.BaseURL != "" {
			if _, err := url.ParseRequestURI(c.Engine.BaseURL); err != nil {
				errs = append(errs, ValidationError{Field: "engine.base_url", Value: c.Engine.BaseURL, Message: "must be an absolute URL"})
			}
		}
	}
	if c.Engine.MaxToolIterations < 0 {
		errs = append(errs, ValidationError{Field: "engine.max_tool_iterations", Value: c.Engine.MaxToolIterations, Message: "must not be negative"})
	}
	if c.Engine.Temperature < 0 || c.Engine.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "engine.temperature", Value: c.Engine.Temperature, Message: "must be between 0 and 2"})
	}
	return errs
}

func (c *Config) validatePetData() []ValidationError {
	var errs []ValidationError
	for field, raw := range map[string]string{"petdata.pets_url": c.PetData.PetsURL, "petdata.foods_url": c.PetData.FoodsURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Value: raw, Message: "must be an absolute URL"})
		}
	}
	if c.PetData.RetryMax < 0 {
		errs = append(errs, ValidationError{Field: "petdata.retry_max", Value: c.PetData.RetryMax, Message: "must not be negative"})
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	if c.Store.MemoryTurnLimit < 0 {
		errs = append(errs, ValidationError{Field: "store.memory_turn_limit", Value: c.Store.MemoryTurnLimit, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateRedis() []ValidationError {
	if !c.Redis.Enabled {
		return nil
	}
	var errs []ValidationError
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, ValidationError{Field: "redis.addr", Value: c.Redis.Addr, Message: "is required when redis is enabled"})
	}
	if strings.TrimSpace(c.Redis.Group) == "" {
		errs = append(errs, ValidationError{Field: "redis.group", Value: c.Redis.Group, Message: "is required when redis is enabled"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: fmt.Sprintf("must be one of %v", ValidLogLevels())})
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{Field: "logging.format", Value: c.Logging.Format, Message: fmt.Sprintf("must be one of %v", ValidLogFormats())})
	}
	return errs
}
