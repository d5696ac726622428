package main

import (
	"github.com/faidon-laboratory/lab-services/pkg/server"
	"github.com/faidon-laboratory/lab-services/pkg/services/user"
)

func main() {
	server.Exit("user-service", "User Service", func(env *server.Env) error {
		svc, err := user.New(env.Telemetry, env.Simulator, env.Config.Simulation.Greeting, user.DefaultStoreSize)
		if err != nil {
			return err
		}
		svc.RegisterRoutes(env.Router)
		return nil
	})
}
