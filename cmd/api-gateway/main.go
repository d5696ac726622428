package main

import (
	"context"

	"github.com/faidon-laboratory/lab-services/pkg/server"
	"github.com/faidon-laboratory/lab-services/pkg/services/gateway"
)

func main() {
	server.Exit("api-gateway", "API Gateway", func(env *server.Env) error {
		upstreams := env.Config.Upstreams
		client := gateway.NewHTTPClient(env.Telemetry, upstreams.Timeout)
		env.Server.OnShutdown("http_client", func(context.Context) error {
			client.CloseIdleConnections()
			return nil
		})

		gateway.New(env.Telemetry, env.Simulator, client, gateway.Config{
			UserServiceURL:         upstreams.UserServiceURL,
			NotificationServiceURL: upstreams.NotificationServiceURL,
		}).RegisterRoutes(env.Router)
		return nil
	})
}
