package main

import (
	"github.com/joho/godotenv"

	"recruiterrm/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
