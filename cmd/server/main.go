package main

import (
	"log"
	"os"

	"github.com/goliatone/go-escrow-pipeline/bootstrap"
	"github.com/joho/godotenv"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	cfg, err := bootstrap.NewConfig()
	if err != nil {
		log.Fatalf("config error: %s", err)
	}

	if err := Run(cfg); err != nil {
		log.Fatalf("escrow pipeline: %s", err)
	}
}
