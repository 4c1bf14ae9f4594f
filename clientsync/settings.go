package clientsync

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// environment overrides for settings, used by the ctl and test harnesses.
// fields keep their defaults when the corresponding variable is unset.

func TokenRefreshSettingsFromEnv() (*TokenRefreshSettings, error) {
	return settingsFromEnv(DefaultTokenRefreshSettings())
}

func MutationRetryQueueSettingsFromEnv() (*MutationRetryQueueSettings, error) {
	return settingsFromEnv(DefaultMutationRetryQueueSettings())
}

func ClientSettingsFromEnv() (*ClientSettings, error) {
	settings, err := settingsFromEnv(DefaultClientSettings())
	if err != nil {
		return nil, err
	}
	if settings.RefreshSettings, err = TokenRefreshSettingsFromEnv(); err != nil {
		return nil, err
	}
	if settings.RetryQueueSettings, err = MutationRetryQueueSettingsFromEnv(); err != nil {
		return nil, err
	}
	return settings, nil
}

func settingsFromEnv[S any](settings *S) (*S, error) {
	if err := env.Parse(settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return settings, nil
}
