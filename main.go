package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/knhealth/knscreen/cmd"
)

func main() {
	// .env carries site-local settings (database path, CRM webhook, SMTP
	// account); absence is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
