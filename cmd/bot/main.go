package main

import (
	"os"

	"github.com/maaaruch/tg-award-bot/cmd/bot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
