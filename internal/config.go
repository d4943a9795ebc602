package internal

import "time"

type Config struct {
	Host           string `env:"HOST,required=true"`
	Port           int    `env:"PORT,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`

	HistoryLimit  int    `env:"HISTORY_LIMIT,default=50"`
	JWTSecret     string `env:"JWT_SECRET,required=true"`
	ModeratorRole string `env:"MODERATOR_ROLE,default=moderator"`
	BotName       string `env:"BOT_NAME,default=StrophenBot"`

	// AI features degrade gracefully when the key is absent.
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiModel    string `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	AutoModeration bool   `env:"AUTO_MODERATION,default=true"`
	AIBotEnabled   bool   `env:"AI_BOT_ENABLED,default=true"`
}
