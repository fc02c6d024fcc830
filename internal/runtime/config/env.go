package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override the
// transport of a resolved participant, e.g. CONNECTOR_TRANSPORT_NATS_URL.
const EnvPrefix = "CONNECTOR_TRANSPORT"

// ApplyEnv overlays transport settings found in the environment onto t.
func ApplyEnv(t *TransportConfig) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyOverrides(v, t)
}

func applyOverrides(v *viper.Viper, t *TransportConfig) {
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("system", &t.System)
	str("kafka_client_id", &t.KafkaClientID)
	str("kafka_consumer_group", &t.KafkaConsumerGroup)
	str("rabbitmq_url", &t.RabbitMQURL)
	str("nats_url", &t.NATSURL)
	str("http_server_address", &t.HTTPServerAddress)
	str("http_publisher_url", &t.HTTPPublisherURL)
	str("io_file", &t.IOFile)
	str("sqlite_file", &t.SQLiteFile)
	str("postgres_url", &t.PostgresURL)
	str("aws_region", &t.AWSRegion)
	str("aws_account_id", &t.AWSAccountID)
	str("aws_access_key_id", &t.AWSAccessKeyID)
	str("aws_secret_access_key", &t.AWSSecretAccessKey)
	str("aws_endpoint", &t.AWSEndpoint)

	if brokers := v.GetString("kafka_brokers"); brokers != "" {
		t.KafkaBrokers = strings.Split(brokers, ",")
	}
	if v.GetString("jetstream_replicas") != "" {
		t.JetStreamReplicas = v.GetInt("jetstream_replicas")
	}
	if v.GetString("io_replay") != "" {
		t.IOReplay = v.GetBool("io_replay")
	}
}
