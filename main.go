package main

import (
	"fileserver/api"
	"fileserver/config"
	"fileserver/db"
	"fmt"
	"log"
	"net/http"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           FileServer API
// @version         1.0

// @description     A small self-hosted file server. Authenticated users store
// @description     JSON documents in per-owner namespaces, share them with
// @description     other users for read access, and query them by content.
// @description
// @description     All version-scoped endpoints require authentication, either
// @description     HTTP Basic or a bearer token obtained from `/1.0/user/token`.
// @description     Every operation takes its parameters from the query string.
// @description
// @description     **Content querying (`q` parameter):**
// @description     `GET /1.0/file/list` filters by content with a single
// @description     `path operator value` condition, e.g. `?q=profile.age gte 21`.
// @description     `path` is dot notation into the stored JSON; operators are
// @description     `eq`, `ne`, `gt`, `gte`, `lt`, `lte`, `contains`,
// @description     `startswith`, `endswith`.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.basic BasicAuth
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	users, err := db.NewUserStore(cfg.UserDbPath, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize user database: %v", err)
	}
	files, err := db.NewFileStore(cfg.FileDbDir, users)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize file database: %v", err)
	}

	router := api.NewRouter(cfg, users, files)

	// Serve the static API description and the swagger UI on top of it. The
	// UI path must differ from the StaticFS mount to avoid a route conflict.
	router.StaticFS("/docs", http.Dir("docs"))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	if cfg.TLSCertFile != "" {
		log.Printf("INFO: Starting server on %s (TLS)", listenAddr)
		err = server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		log.Printf("INFO: Starting server on %s", listenAddr)
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
}
