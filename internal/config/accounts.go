package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/lishuo8109/weibopilot/api/schemas"
)

// LoadAccounts reads the ordered account credential list from a YAML file.
// The list is consumed exactly once, at pool construction.
func LoadAccounts(path string) ([]schemas.AccountCredential, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}

	var wrapper struct {
		Accounts []schemas.AccountCredential `mapstructure:"accounts"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts file %s: %w", path, err)
	}
	if len(wrapper.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s contains no accounts", path)
	}

	seen := make(map[string]struct{}, len(wrapper.Accounts))
	for i, acct := range wrapper.Accounts {
		if acct.AccountID == "" {
			return nil, fmt.Errorf("account at index %d has no account_id", i)
		}
		if acct.Cookie == "" {
			return nil, fmt.Errorf("account %s has no cookie", acct.AccountID)
		}
		if _, dup := seen[acct.AccountID]; dup {
			return nil, fmt.Errorf("duplicate account_id %s", acct.AccountID)
		}
		seen[acct.AccountID] = struct{}{}
		if wrapper.Accounts[i].OnlineState == "" {
			wrapper.Accounts[i].OnlineState = schemas.OnlineOff
		}
	}
	return wrapper.Accounts, nil
}
