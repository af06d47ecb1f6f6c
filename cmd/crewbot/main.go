package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/crewbot/bot/app"
	corecmd "github.com/m3rciful/crewbot/core/cmd"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config/crewbot.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("crewbot: %v", err)
	}
}
