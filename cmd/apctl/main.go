package main

import "github.com/joho/godotenv"

func main() {
	// Load .env in development; deployed environments set real variables
	_ = godotenv.Load()
	Execute()
}
