package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPCORE"

const envPathSep = "__"

// envKeyAliases maps config keys to the extra variable names that may set
// them, in lookup order.
var envKeyAliases = map[string][]string{
	"port":                      {"APPCORE_PORT", "APP_PORT", "PORT"},
	"host":                      {"APPCORE_HOST", "APP_HOST", "HOST"},
	"env.env":                   {"APPCORE_ENV__ENV", "APPCORE_ENV", "APP_ENV"},
	"middleware.session.secret": {"APPCORE_MIDDLEWARE__SESSION__SECRET", "SESSION_SECRET"},
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

// lookupEnv returns the first non-empty value among names, preferring the
// real environment over the dotenv file.
func lookupEnv(names []string, dotenv map[string]string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	for _, name := range names {
		if v := strings.TrimSpace(dotenv[name]); v != "" {
			return v
		}
	}
	return ""
}

// envToKey turns APPCORE_MIDDLEWARE__SESSION__SECRET into
// middleware.session.secret. It returns "" for foreign variables.
func envToKey(name string) string {
	prefix := EnvPrefix + "_"
	if !strings.HasPrefix(name, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(name, prefix)
	if rest == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(rest, envPathSep, "."))
}

func bindEnv(v *viper.Viper, dotenv map[string]string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envPathSep))
	v.AutomaticEnv()

	aliasOf := map[string]string{}
	for key, names := range envKeyAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
		for _, name := range names {
			aliasOf[name] = key
		}
	}

	// Bind prefixed variables explicitly so they show up in AllKeys and
	// therefore in Section decoding.
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if key := envToKey(name); key != "" {
			if _, aliased := aliasOf[name]; !aliased {
				_ = v.BindEnv(key, name)
			}
		}
	}

	// The dotenv file fills in what the real environment leaves unset.
	for key, names := range envKeyAliases {
		if realEnvSets(key, names[0]) {
			continue
		}
		for _, name := range names {
			if value, ok := dotenv[name]; ok {
				v.Set(key, value)
				break
			}
		}
	}
	for name, value := range dotenv {
		if _, aliased := aliasOf[name]; aliased {
			continue
		}
		key := envToKey(name)
		if key == "" || realEnvSets(key, name) {
			continue
		}
		v.Set(key, value)
	}
}

// realEnvSets reports whether the process environment already provides key.
// Empty variables count as unset, matching viper.
func realEnvSets(key, name string) bool {
	names := append([]string{name, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", envPathSep))}, envKeyAliases[key]...)
	for _, n := range names {
		if os.Getenv(n) != "" {
			return true
		}
	}
	return false
}
