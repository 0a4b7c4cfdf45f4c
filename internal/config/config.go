package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every `env` tag when reading environment overrides.
const EnvPrefix = "PLEXWATCH_"

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// If cmd is provided, flags explicitly set via CLI will not be overwritten.
// The file named by the struct's Config field is optional; a missing file is
// not an error, a malformed one is.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	var configPath string
	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String {
		configPath = field.String()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			config, decodeErr := decodeFile(configPath, data)
			if decodeErr != nil {
				return decodeErr
			}

			for i := 0; i < v.NumField(); i++ {
				fieldType := t.Field(i)
				if changedFlags[flagName(fieldType)] {
					continue
				}
				if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(config, tomlPath); value != nil {
						setFieldValue(v.Field(i), value)
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if changedFlags[flagName(fieldType)] {
			continue
		}
		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				setFieldValueFromString(v.Field(i), envValue)
			}
		}
	}

	return nil
}

// decodeFile parses a config file into a generic map. Files ending in .yaml
// or .yml are read as YAML, everything else as TOML.
func decodeFile(path string, data []byte) (map[string]any, error) {
	var config map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}
	if config == nil {
		config = map[string]any{}
	}
	return config, nil
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "HealthURL" -> "health-url".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// flagName returns the CLI flag bound to a field, honouring a `name` tag.
func flagName(field reflect.StructField) string {
	if name := field.Tag.Get("name"); name != "" {
		return name
	}
	return fieldNameToFlag(field.Name)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue sets a field value using reflection.
// Arrays assigned to string fields are joined with commas so list-valued
// options can share the flag representation.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		switch s := value.(type) {
		case string:
			field.SetString(s)
		case []any:
			field.SetString(strings.Join(toStrings(s), ","))
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch i := value.(type) {
		case int64:
			field.SetInt(i)
		case int:
			field.SetInt(int64(i))
		case float64:
			field.SetInt(int64(i))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if arr, ok := value.([]any); ok {
				field.Set(reflect.ValueOf(toStrings(arr)))
			}
		}
	}
}

func toStrings(arr []any) []string {
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// setFieldValueFromString sets a field value from string (for env vars).
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(SplitList(value)))
		}
	}
}

// SplitList splits a comma-separated list, trimming blanks and dropping empty items.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadLoggingConfig reads the [logging] section of a config file.
// Keys other than level, format, file and console are per-module levels.
// An error is returned when the file cannot be read or parsed so callers
// watching the file can keep the previous levels.
func LoadLoggingConfig(configPath string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	raw, err := decodeFile(configPath, data)
	if err != nil {
		return cfg, err
	}

	section, ok := raw["logging"].(map[string]any)
	if !ok {
		return cfg, nil
	}

	for key, value := range section {
		switch key {
		case "console":
			if b, isBool := value.(bool); isBool {
				cfg.Console = b
			}
		case "level":
			cfg.Level = fmt.Sprint(value)
		case "format":
			cfg.Format = fmt.Sprint(value)
		case "file":
			cfg.File = fmt.Sprint(value)
		default:
			if s, isString := value.(string); isString {
				cfg.Modules[key] = s
			}
		}
	}

	return cfg, nil
}
