package main

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todo-api/api"
	"todo-api/storage"
)

const minSecretBytes = 32

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var store api.Storage
	if os.Getenv("LOCAL_STORE") == "memory" {
		store = storage.NewMemory()
	} else {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		todosTableName := os.Getenv("TODOS_TABLE")
		usersTableName := os.Getenv("USERS_TABLE")
		if connStr == "" || todosTableName == "" || usersTableName == "" {
			log.Fatal("missing storage config")
		}
		tables, err := storage.New(connStr, todosTableName, usersTableName)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = tables

		if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
			redisOpts, err := redis.ParseURL(redisConn)
			if err != nil {
				parts := strings.Split(redisConn, ",")
				redisOpts = &redis.Options{Addr: parts[0]}
				for _, p := range parts[1:] {
					kv := strings.SplitN(p, "=", 2)
					if len(kv) != 2 {
						continue
					}
					switch strings.ToLower(kv[0]) {
					case "password":
						redisOpts.Password = kv[1]
					case "ssl":
						if strings.ToLower(kv[1]) == "true" {
							redisOpts.TLSConfig = &tls.Config{}
						}
					}
				}
			}
			ttl := 5 * time.Minute
			if v := os.Getenv("CACHE_TTL"); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil || d <= 0 {
					log.Fatalf("invalid CACHE_TTL: %v", err)
				}
				ttl = d
			}
			store = storage.NewCache(tables, redis.NewClient(redisOpts), ttl)
		}
	}

	secret := []byte(os.Getenv("JWT_SECRET"))
	jwtIssuer := os.Getenv("JWT_ISSUER")
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	if len(secret) < minSecretBytes {
		log.Fatalf("JWT_SECRET must be at least %d bytes", minSecretBytes)
	}
	if jwtIssuer == "" || jwtAudience == "" {
		log.Fatal("missing JWT config")
	}
	expiryMinutes := 60
	if v := os.Getenv("JWT_EXPIRY_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid JWT_EXPIRY_MINUTES: %v", err)
		}
		if n < 1 || n > 1440 {
			log.Fatalf("invalid JWT_EXPIRY_MINUTES: must be between 1 and 1440")
		}
		expiryMinutes = n
	}
	auth := api.NewAuth(secret, jwtAudience, jwtIssuer)
	issuer := api.NewIssuer(secret, jwtIssuer, jwtAudience, expiryMinutes)
	creds := api.NewCredentials(store)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("todo_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	logger := log.New()
	api.Register(e, store, auth, issuer, creds, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
