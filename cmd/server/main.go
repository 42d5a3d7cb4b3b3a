package main

import (
	"context"
	"log"

	"github.com/passlink/passlink/internal/server"
	"github.com/passlink/passlink/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
