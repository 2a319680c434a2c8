package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supergraph/config"
	"supergraph/gateway"
	"supergraph/graph/federation"
	"supergraph/graph/posts"
	"supergraph/graph/users"
	"supergraph/identity"
	"supergraph/redis"
	"supergraph/server"
	"supergraph/services/post"
	"supergraph/services/user"
	"supergraph/utils"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	service := flag.String("service", "gateway", "Service to run: gateway, users or posts")
	exportSchema := flag.String("schema", "", "Write the service schema to this file and exit")
	flag.Parse()

	// Load environment variables BEFORE initializing logger
	if err := godotenv.Load(".env"); err != nil {
		// Use fmt for initial logging since logger is not initialized yet
		fmt.Printf("No .env file found, using environment variables: %v\n", err)
	}

	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", *service)
	}

	// Initialize logger AFTER loading environment variables
	utils.InitLogger()
	defer utils.Logger.Sync()

	if _, err := server.InitI18n(); err != nil {
		utils.Logger.Fatal("Failed to load translations", zap.Error(err))
	}

	// Перехватываем сигналы завершения программы (Ctrl+C, kill, и т.д.)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	switch *service {
	case "gateway":
		runGateway(*exportSchema, shutdown)
	case "users", "posts":
		runSubgraph(*service, *exportSchema, shutdown)
	default:
		utils.Logger.Fatal("Unknown service", zap.String("service", *service))
	}
}

func runGateway(exportPath string, shutdown chan os.Signal) {
	cfg, err := config.LoadGateway()
	if err != nil {
		utils.Logger.Fatal("Invalid gateway configuration", zap.Error(err))
	}

	builder, err := newIdentityBuilder(cfg.Auth)
	if err != nil {
		utils.Logger.Fatal("Invalid auth configuration", zap.Error(err))
	}

	descriptors := make([]gateway.SubgraphDescriptor, 0, len(cfg.Subgraphs))
	for _, sg := range cfg.Subgraphs {
		descriptors = append(descriptors, gateway.SubgraphDescriptor{Name: sg.Name, URL: sg.URL})
	}

	gw := gateway.New(gateway.Options{
		Subgraphs:     descriptors,
		HTTPClient:    &http.Client{Timeout: cfg.SubgraphTimeout},
		Identity:      builder,
		Introspection: !cfg.Production,
	})

	// Без исходной композиции gateway не запускается
	startCtx, startCancel := context.WithTimeout(context.Background(), 2*cfg.SubgraphTimeout)
	err = gw.Start(startCtx)
	startCancel()
	if err != nil {
		utils.Logger.Fatal("Supergraph composition failed", zap.Error(err))
	}

	if exportPath != "" {
		if err := server.ExportSchema(exportPath, gw.Supergraph().SDL); err != nil {
			utils.Logger.Fatal("Error exporting schema", zap.Error(err))
		}
		return
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())

	var (
		redisService *redis.Service
		events       <-chan redis.SchemaEvent
	)
	if cfg.Redis.Enabled {
		// Подписка восстанавливается сама, когда Redis снова доступен
		redisService, err = redis.NewService(cfg.Redis)
		if err != nil {
			utils.Logger.Warn("Redis is unavailable, schema events resume once it reconnects", zap.Error(err))
		}
		events = redis.NewSchemaSubscriber(redisService).Listen(watchCtx)
	}

	go gw.Watch(watchCtx, cfg.SchemaPollInterval, events)

	serve(server.NewGatewayRouter(gw, cfg.Production), cfg.Port, shutdown, nil, func() {
		stopWatch()
		closeRedis(redisService)
	})
}

func runSubgraph(name, exportPath string, shutdown chan os.Signal) {
	cfg, err := config.LoadSubgraph(name)
	if err != nil {
		utils.Logger.Fatal("Invalid subgraph configuration", zap.Error(err))
	}

	var sg *federation.Subgraph
	switch name {
	case "users":
		sg, err = users.NewSubgraph(user.NewUserService())
	case "posts":
		sg, err = posts.NewSubgraph(post.NewPostService())
	}
	if err != nil {
		utils.Logger.Fatal("Failed to build subgraph schema", zap.String("subgraph", name), zap.Error(err))
	}

	if exportPath != "" {
		if err := server.ExportSchema(exportPath, sg.SDL()); err != nil {
			utils.Logger.Fatal("Error exporting schema", zap.Error(err))
		}
		return
	}

	var redisService *redis.Service
	if cfg.Redis.Enabled {
		redisService, err = redis.NewService(cfg.Redis)
		if err != nil {
			utils.Logger.Warn("Redis is unavailable, schema change will not be announced", zap.Error(err))
		}
	}

	announce := func() {
		if redisService == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sum := sha256.Sum256([]byte(sg.SDL()))
		if err := redis.NewSchemaPublisher(redisService).PublishSchemaChanged(ctx, name, hex.EncodeToString(sum[:])); err != nil {
			utils.Logger.Warn("Failed to announce schema", zap.String("subgraph", name), zap.Error(err))
		}
	}

	serve(server.NewSubgraphRouter(sg.Schema), cfg.Port, shutdown, announce, func() {
		closeRedis(redisService)
	})
}

func newIdentityBuilder(cfg config.AuthConfig) (*identity.Builder, error) {
	if cfg.Mode == config.AuthModePresence {
		return identity.NewBuilder(cfg.Header, identity.NewPresenceVerifier()), nil
	}

	verifier, err := identity.NewJWTVerifier(identity.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return nil, err
	}
	return identity.NewBuilder(cfg.Header, verifier), nil
}

// serve runs handler until a shutdown signal arrives. onListen runs once the
// port is bound, cleanup after the HTTP server has stopped.
func serve(handler http.Handler, port string, shutdown chan os.Signal, onListen, cleanup func()) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		utils.Logger.Fatal("Server startup failed", zap.Error(err))
	}

	// Запускаем сервер в отдельной горутине
	go func() {
		utils.Logger.Info(fmt.Sprintf("Server started on port %s", port))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal("Server startup failed", zap.Error(err))
		}
	}()

	if onListen != nil {
		onListen()
	}

	// Ожидаем сигнал завершения
	<-shutdown
	utils.Logger.Info("Shutdown signal received, gracefully shutting down...")

	// Создаем единый контекст с таймаутом для всего процесса shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushLogs := func() {
		if err := utils.Logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Error flushing logs: %v\n", err)
		}
	}

	// 1. Сначала останавливаем HTTP-сервер
	serverCtx, serverCancel := context.WithTimeout(ctx, 15*time.Second)
	defer serverCancel()

	if err := srv.Shutdown(serverCtx); err != nil {
		utils.Logger.Error("Server shutdown error", zap.Error(err))
	} else {
		utils.Logger.Info("Server shutdown complete")
	}
	flushLogs()

	// 2. Останавливаем фоновые задачи и закрываем Redis
	if cleanup != nil {
		cleanup()
	}

	utils.Logger.Info("Graceful shutdown complete")
	flushLogs()
}

func closeRedis(s *redis.Service) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		utils.Logger.Error("Redis shutdown error", zap.Error(err))
	} else {
		utils.Logger.Info("Redis shutdown complete")
	}
}
