package configs

type Config struct {
	HttpAddr   string
	DebugAddr  string
	Datastore  string
	Redis      RedisConfig
	Cassandra  CassandraConfig
	OffersFile string
	ResetHour  int
	LogLevel   string
}

type RedisConfig struct {
	Address  string
	Database int
	Password string
}

type CassandraConfig struct {
	Hosts    string
	Keyspace string
}
