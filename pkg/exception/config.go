package exception

import "github.com/yanun0323/errors"

// Config errors
var (
	ErrConfigMissingAPIKey = errors.New("config: BIRDEYE_API_KEY is not set")
	ErrConfigInvalid       = errors.New("config: invalid value")
)
