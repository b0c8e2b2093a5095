package redisstream

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
	Topic    string `mapstructure:"topic"`
}

// DefaultSettings mirrors the flag defaults: in-memory transport, local redis.
func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "petfood-events",
		Consumer: "gateway-1",
		Topic:    "petfood.sessions",
	}
}
