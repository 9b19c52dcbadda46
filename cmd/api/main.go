package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Flarenzy/authgate/docs"
	api "github.com/Flarenzy/authgate/internal/app"
)

//	@title			authgate API
//	@version		1.0
//	@description	Bearer-token request authentication in front of a small HTTP API.

//	@contact.name	API Support
//	@contact.url	http://www.swagger.io/support
//	@contact.email	support@swagger.io

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:4040
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := api.Run(ctx, cfg); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
