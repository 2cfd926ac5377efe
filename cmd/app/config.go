package main

type Config struct {
	Host           string `env:"HOST,default=127.0.0.1"`
	ChatPort       int    `env:"CHAT_PORT,default=9900"`
	EchoPort       int    `env:"ECHO_PORT,default=9901"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	TranscriptPath string `env:"TRANSCRIPT_PATH,default=chat_log.txt"`
	EventLogPath   string `env:"EVENT_LOG_PATH,default=logs/error_log.txt"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=logs/events"`
	NTPHost        string `env:"NTP_HOST,default=pool.ntp.org"`
}
