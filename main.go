package main

import (
	"github.com/joho/godotenv"

	"sitechat/cmd"
)

func main() {
	_ = godotenv.Load()
	cmd.Execute()
}
