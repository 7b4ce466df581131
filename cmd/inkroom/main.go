package main

import (
	"log"

	"github.com/joho/godotenv"

	"inkroom/cmd/internal/app"
)

func main() {
	// Optional .env for local development; env vars win.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
