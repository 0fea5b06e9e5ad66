package main

import (
	"log"
	"os"

	"github.com/fastly/pubsub/cmd/gatewayd/commands"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := commands.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
