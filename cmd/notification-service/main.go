package main

import (
	"github.com/faidon-laboratory/lab-services/pkg/server"
	"github.com/faidon-laboratory/lab-services/pkg/services/notification"
)

func main() {
	server.Exit("notification-service", "Notification Service", func(env *server.Env) error {
		svc, err := notification.New(env.Telemetry, env.Simulator, notification.DefaultHistorySize)
		if err != nil {
			return err
		}
		svc.RegisterRoutes(env.Router)
		return nil
	})
}
