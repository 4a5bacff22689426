package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// YAMLFeeder feeds a struct from a YAML file, honoring `yaml` struct tags.
type YAMLFeeder struct {
	Path string
}

// Feed reads f.Path and unmarshals it into structure.
func (f YAMLFeeder) Feed(structure any) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", f.Path, err)
	}
	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("config: parsing %s as YAML: %w", f.Path, err)
	}
	return nil
}

// TOMLFeeder feeds a struct from a TOML file, honoring `toml` struct tags.
type TOMLFeeder struct {
	Path string
}

// Feed reads f.Path and unmarshals it into structure.
func (f TOMLFeeder) Feed(structure any) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", f.Path, err)
	}
	if err := toml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("config: parsing %s as TOML: %w", f.Path, err)
	}
	return nil
}

// EnvFeeder feeds a struct from environment variables, honoring `env`
// struct tags (e.g. `env:"MODULE_PATH"`), optionally joined with Prefix
// (e.g. prefix "MONARCH" + tag "MODULE_PATH" -> "MONARCH_MODULE_PATH").
// Values are coerced to the field's Go type via golobby/cast.
type EnvFeeder struct {
	Prefix string
}

// Feed populates structure's tagged fields from the environment. A field
// whose environment variable is unset is left untouched.
func (f EnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: EnvFeeder requires a pointer to struct, got %T", structure)
	}
	return f.feedStruct(rv.Elem())
}

func (f EnvFeeder) feedStruct(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)

		if field.Kind() == reflect.Struct {
			if err := f.feedStruct(field); err != nil {
				return fmt.Errorf("field %s: %w", fieldType.Name, err)
			}
			continue
		}

		tag, ok := fieldType.Tag.Lookup("env")
		if !ok {
			continue
		}
		name := strings.ToUpper(tag)
		if f.Prefix != "" {
			name = strings.ToUpper(f.Prefix) + "_" + name
		}
		raw, set := os.LookupEnv(name)
		if !set {
			continue
		}
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("field %s (env %s): %w", fieldType.Name, name, err)
		}
		if !field.CanSet() {
			return fmt.Errorf("field %s is not settable", fieldType.Name)
		}
		field.Set(reflect.ValueOf(converted))
	}
	return nil
}
