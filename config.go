package genrotor

// Backend identifiers accepted in Config.Provider.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Config holds construction parameters for a Rotator.
type Config struct {
	// Provider selects the transport backend ("gemini", "openai",
	// "bedrock"). Defaults to gemini when empty.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Credentials is the ordered list of API credentials; one rotation
	// client is built per entry and clients are tried in this order.
	Credentials []string `json:"credentials" yaml:"credentials"`
	// Models is the ordered roster of model identifiers. Order defines
	// priority: the roster is grouped into consecutive primary/secondary
	// pairs during each request.
	Models []string `json:"models" yaml:"models"`
	// BaseURL overrides the backend API endpoint (tests, proxies).
	// Ignored by the bedrock backend.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Region is the AWS region for the bedrock backend.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// AttemptLog enables the persistent attempt journal (optional).
	AttemptLog *AttemptLogConfig `json:"attempt_log,omitempty" yaml:"attempt_log,omitempty"`
}

// AttemptLogConfig selects the attempt journal backend.
type AttemptLogConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `json:"backend" yaml:"backend"`
	// DSN is a file path (sqlite) or connection string (postgres).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
