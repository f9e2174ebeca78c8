package config

type Redis struct{}

var _ RedisConfig = Redis{}

// GetRedisAddr returns an empty string when refresh records should stay in memory
func (Redis) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Redis) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Redis) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}
