package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoaderConfig configures where the Loader reads values from
type LoaderConfig struct {
	ConfigFile      string
	EnvironmentFile string

	// EnvPrefix, when set, makes PREFIX_NAME take precedence over NAME
	EnvPrefix string
}

// Loader fills a tagged struct from defaults, a YAML file, an env file and
// the process environment, in that order.
//
// Fields use two tags besides yaml: `default:"..."` and `env:"NAME"`.
// Untagged fields get an env name derived from the struct path, e.g.
// Power.SettleDelay becomes POWER_SETTLEDELAY.
type Loader struct {
	cfg LoaderConfig
}

// NewLoader creates a Loader
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{cfg: cfg}
}

// Load populates target, which must be a pointer to a struct
func (l *Loader) Load(target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a non-nil pointer to a struct, got %T", target)
	}

	if err := walkFields(v.Elem(), "", l.applyDefault); err != nil {
		return fmt.Errorf("failed to set defaults: %w", err)
	}

	if l.cfg.ConfigFile != "" {
		if err := loadYAMLFile(l.cfg.ConfigFile, target); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if l.cfg.EnvironmentFile != "" {
		if err := loadEnvFile(l.cfg.EnvironmentFile); err != nil {
			return fmt.Errorf("failed to load environment file: %w", err)
		}
	}

	if err := walkFields(v.Elem(), "", l.applyEnv); err != nil {
		return fmt.Errorf("failed to load from environment: %w", err)
	}

	return nil
}

type fieldVisitor func(field reflect.Value, sf reflect.StructField, envName string) error

// walkFields calls visit for every settable leaf field of v, recursing into
// nested structs. Struct-typed leaves such as time.Time are not special-cased
// because the config schema has none.
func walkFields(v reflect.Value, prefix string, visit fieldVisitor) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}

		name := strings.ToUpper(sf.Name)
		if prefix != "" {
			name = prefix + "_" + name
		}

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}
		if field.Kind() == reflect.Struct {
			if err := walkFields(field, name, visit); err != nil {
				return err
			}
			continue
		}

		envName := sf.Tag.Get("env")
		if envName == "" {
			envName = name
		}
		if err := visit(field, sf, envName); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyDefault(field reflect.Value, sf reflect.StructField, _ string) error {
	def, ok := sf.Tag.Lookup("default")
	if !ok || def == "" {
		return nil
	}
	if err := setFieldValue(field, def); err != nil {
		return fmt.Errorf("failed to set default for field %s: %w", sf.Name, err)
	}
	return nil
}

func (l *Loader) applyEnv(field reflect.Value, sf reflect.StructField, envName string) error {
	if sf.Tag.Get("yaml") == "-" && sf.Tag.Get("env") == "" {
		return nil
	}

	candidates := []string{envName}
	if l.cfg.EnvPrefix != "" {
		candidates = append([]string{strings.ToUpper(l.cfg.EnvPrefix) + "_" + envName}, candidates...)
	}

	for _, name := range candidates {
		value, exists := os.LookupEnv(name)
		if !exists {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set field %s from env %s: %w", sf.Name, name, err)
		}
		return nil
	}
	return nil
}

// setFieldValue parses value into field according to its kind
func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", value)
}

// loadYAMLFile decodes filename into target. A missing file is not an error.
func loadYAMLFile(filename string, target interface{}) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

// loadEnvFile exports KEY=VALUE lines from filename into the process
// environment without overriding variables that are already set.
func loadEnvFile(filename string) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read environment file %s: %w", filename, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid line %d in environment file %s: %s", lineNum, filename, line)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// FindConfigFile looks for <name>.yaml in the working directory, ./config,
// ./configs, /etc/<name> and ~/.<name>. It returns "" if none exists.
func FindConfigFile(name string) string {
	file := name + ".yaml"
	paths := []string{
		file,
		filepath.Join("config", file),
		filepath.Join("configs", file),
		filepath.Join("/etc", name, file),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+name, file))
	}
	return firstExisting(paths)
}

// FindEnvironmentFile looks for .env or <name>.env in the working directory,
// ./config and ./configs.
func FindEnvironmentFile(name string) string {
	file := name + ".env"
	return firstExisting([]string{
		".env",
		file,
		filepath.Join("config", ".env"),
		filepath.Join("config", file),
		filepath.Join("configs", ".env"),
		filepath.Join("configs", file),
	})
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
