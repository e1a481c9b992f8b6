package main

import (
	"scrapebridge/cmd/scrapebridge/commands"
	"scrapebridge/internal/components/serviceutil"

	"github.com/joho/godotenv"
)

func main() {
	// a missing .env is fine, the variables may come from the environment
	_ = godotenv.Load()
	commands.ExecuteContext(serviceutil.SignalContext())
}
