package main

import (
	"context"
	"log"

	"github.com/avezhov/passport/internal/server"
	"github.com/avezhov/passport/internal/server/config"
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
