package main

import (
	"log"

	"tradewin/app"
	"tradewin/config"
)

func main() {
	cfg := config.LoadFromEnv()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("❌ Startup failed: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("❌ Engine stopped with error: %v", err)
	}
}
