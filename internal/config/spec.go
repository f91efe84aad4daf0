package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigSpec represents a full configuration specification as a map
// of configuration item names associated with their description
type ConfigSpec map[string]ConfigVarSpec

// ConfigVarSpec describes a configuration item in a ConfigSpec
type ConfigVarSpec struct {
	ParseFunc    func(any) (any, error)
	DefaultValue any
	Help         string
	EnvVar       string
}

// LoadConfiguration loads a hierarchy of configuration values based on
// the specification. Values come from, in increasing precedence: the
// defaults, the YAML file at configPath (skipped when empty), environment
// variables, and flags bound with AddFlag.
func (configSpec ConfigSpec) LoadConfiguration(configPath string) error {
	if configPath != "" {
		viper.SetConfigType("yaml")
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("cannot read config: %w", err)
		}
	}
	for configVarName, configVarSpec := range configSpec {
		viper.SetDefault(configVarName, configVarSpec.DefaultValue)
		if configVarSpec.EnvVar != "" {
			_ = viper.BindEnv(configVarName, configVarSpec.EnvVar)
		}
		if configVarSpec.ParseFunc != nil {
			parsedValue, err := configVarSpec.ParseFunc(viper.Get(configVarName))
			if err != nil {
				return fmt.Errorf("failed to parse config %s: %w", configVarName, err)
			}
			viper.Set(configVarName, parsedValue)
		}
	}
	return nil
}

// AddFlag creates and binds a new flag in a pflag.FlagSet to the running
// configuration. It takes precedence over environment variables and
// configuration files.
func (configSpec ConfigSpec) AddFlag(flags *pflag.FlagSet, flagName, configVarName string) {
	configVarSpec, ok := configSpec[configVarName]
	if !ok {
		panic(fmt.Sprintf("unknown config var: %s", configVarName))
	}
	switch defaultValue := configVarSpec.DefaultValue.(type) {
	case string:
		flags.String(flagName, defaultValue, configVarSpec.Help)
	case int:
		flags.Int(flagName, defaultValue, configVarSpec.Help)
	case bool:
		flags.Bool(flagName, defaultValue, configVarSpec.Help)
	case []string:
		flags.StringSlice(flagName, defaultValue, configVarSpec.Help)
	default:
		panic(fmt.Sprintf("invalid config var type: var=%s type=%T",
			configVarName, configVarSpec.DefaultValue))
	}
	_ = viper.BindPFlag(configVarName, flags.Lookup(flagName))
}

// GetString returns a single running configuration value of type string
func (configSpec ConfigSpec) GetString(varName string) string {
	return viper.GetString(varName)
}

// GetInt returns a single running configuration value of type int
func (configSpec ConfigSpec) GetInt(varName string) int {
	return viper.GetInt(varName)
}

// GetBool returns a single running configuration value of type bool
func (configSpec ConfigSpec) GetBool(varName string) bool {
	return viper.GetBool(varName)
}

// GetStringSlice returns a running configuration value of type []string
func (configSpec ConfigSpec) GetStringSlice(varName string) []string {
	return viper.GetStringSlice(varName)
}

// Set sets a configuration value
func (configSpec ConfigSpec) Set(varName string, value any) {
	viper.Set(varName, value)
}

// Reset resets the configuration values (only for testing)
func (configSpec ConfigSpec) Reset() {
	viper.Reset()
}

// ParseList accepts a YAML list, a flag slice, or a comma-separated
// string (as environment variables provide) and returns trimmed,
// non-empty items.
func ParseList(value any) (any, error) {
	var parts []string
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item %v is not a string", item)
			}
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("unsupported list value of type %T", value)
	}

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items, nil
}
