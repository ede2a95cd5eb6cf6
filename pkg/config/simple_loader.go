package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// EnvPrefix prefixes every environment override, e.g. CSTM_CSV_DELIMITER.
const EnvPrefix = "CSTM"

// Load builds a Config from defaults, the YAML file at filePath (if not
// empty) and CSTM_* environment variables, in increasing precedence. ${VAR}
// references in the file are substituted before parsing. The result is
// validated.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, "", reflect.ValueOf(*Default()))

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
		if err != nil {
			return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", filePath)
		}
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", filePath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of cfg under its mapstructure key so that
// AutomaticEnv can override keys that the file does not mention.
func setDefaults(v *viper.Viper, prefix string, cfg reflect.Value) {
	t := cfg.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		value := cfg.Field(i)
		if value.Kind() == reflect.Struct {
			setDefaults(v, key, value)
			continue
		}
		v.SetDefault(key, value.Interface())
	}
}

// Save saves a configuration to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
