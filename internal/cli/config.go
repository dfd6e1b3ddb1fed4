// internal/cli/config.go
package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Corphon/shakescript/internal/config"
)

// Settings are the resolved shakectl options
type Settings struct {
	APIBaseURL string
	Timeout    time.Duration
	RateLimit  float64
	NoColor    bool
	Verbose    bool
}

// loadSettings resolves flag, then SHAKESCRIPT_* env, then .shakectl.yaml,
// then the defaults. Flags are bound into v by the root command.
func loadSettings(v *viper.Viper, cfgFile string) (*Settings, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".shakectl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("SHAKESCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base_url", config.DefaultAPIBaseURL)
	v.SetDefault("api_timeout", config.DefaultAPITimeout)
	v.SetDefault("api_rate_limit", 0.0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	s := &Settings{
		APIBaseURL: strings.TrimRight(v.GetString("api_base_url"), "/"),
		Timeout:    v.GetDuration("api_timeout"),
		RateLimit:  v.GetFloat64("api_rate_limit"),
		NoColor:    v.GetBool("no_color"),
		Verbose:    v.GetBool("verbose"),
	}

	u, err := url.Parse(s.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", s.APIBaseURL)
	}
	if s.Timeout < 0 {
		return nil, fmt.Errorf("api timeout must not be negative, got %s", s.Timeout)
	}
	return s, nil
}
