package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
	Storage  StorageConfig  `json:"storage"`
	Fanout   FanoutConfig   `json:"fanout"`

	// Categories overrides the built-in catalog. Order is preserved;
	// "all" is reserved and may not appear here.
	Categories []CategoryConfig `json:"categories,omitempty"`

	// Poller watches the administration site's feed. Omitted section
	// means disabled.
	Poller *PollerConfig `json:"poller,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`

	// AdminToken guards /admin endpoints (Authorization: Bearer <token>).
	// Empty disables the admin surface entirely.
	AdminToken string `json:"admin_token,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type FanoutConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// SendTimeout bounds a single recipient delivery (Go duration string).
	SendTimeout string `json:"send_timeout,omitempty"`
}

type CategoryConfig struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
}

type PollerConfig struct {
	Enabled bool   `json:"enabled"`
	FeedURL string `json:"feed_url"`

	// Schedule is a cron spec (5-field) or "@every 5m" style expression.
	Schedule string `json:"schedule,omitempty"`

	// DedupWindow is how long relayed item hashes are remembered.
	DedupWindow string `json:"dedup_window,omitempty"`
}
