// Package transports registers every built-in transport with the default
// registry. Import it for its side effects.
package transports

import (
	_ "github.com/drblury/connector/transport/aws"
	_ "github.com/drblury/connector/transport/channel"
	_ "github.com/drblury/connector/transport/http"
	_ "github.com/drblury/connector/transport/io"
	_ "github.com/drblury/connector/transport/jetstream"
	_ "github.com/drblury/connector/transport/kafka"
	_ "github.com/drblury/connector/transport/nats"
	_ "github.com/drblury/connector/transport/postgres"
	_ "github.com/drblury/connector/transport/rabbitmq"
	_ "github.com/drblury/connector/transport/sqlite"
)
