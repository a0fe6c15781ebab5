package schemas

// OnlineState describes whether a session holds an authenticated, usable UI surface.
type OnlineState string

const (
	// OnlineOff means the session has not logged in (or login failed).
	OnlineOff OnlineState = "off"
	// OnlineOn means the session completed login and may execute operations.
	OnlineOn OnlineState = "on"
)

// AccountCredential is the immutable bootstrap material for one account's
// session. It is supplied once at pool construction and never changes.
type AccountCredential struct {
	// AccountID is the platform uid of the account.
	AccountID string `mapstructure:"account_id" json:"account_id" yaml:"account_id"`
	// Cookie is the pre-authenticated cookie blob ("name=value; name2=value2").
	Cookie string `mapstructure:"cookie" json:"-" yaml:"cookie"`
	// Proxy is an optional "host:port" proxy address for this account's browser.
	Proxy string `mapstructure:"proxy" json:"proxy,omitempty" yaml:"proxy"`
	// OnlineState is the desired state at startup. Accounts flagged "on" are
	// logged in during pool warm-up.
	OnlineState OnlineState `mapstructure:"online_state" json:"online_state" yaml:"online_state"`
}

// FollowerDelta is the result of a follower-list refresh: the fresh snapshot
// plus the diff against the previously stored one.
type FollowerDelta struct {
	Followers []string `json:"fans"`
	Added     []string `json:"follows"`
	Removed   []string `json:"unfollows"`
	Count     int      `json:"fans_number"`
}
