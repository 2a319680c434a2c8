package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"supergraph/config"
	"supergraph/utils"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	initialReconnectInterval = 5 * time.Second // Начальный интервал для переподключения
	maxReconnectInterval     = 5 * time.Minute // Максимальный интервал для переподключения
	reconnectMultiplier      = 2               // Множитель для экспоненциального backoff
)

// UnavailableError represents an error when Redis is unavailable
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("redis is unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable checks if the error is UnavailableError
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Service keeps a Redis connection alive and reconnects with backoff when it
// drops
type Service struct {
	client       *redis.Client
	config       config.RedisConfig
	mu           sync.RWMutex  // Мьютекс для безопасного доступа к client
	ready        chan struct{} // закрыт, пока есть соединение
	lost         chan struct{} // закрыт, пока соединения нет
	healthCtx    context.Context
	healthCancel context.CancelFunc
	wg           sync.WaitGroup // WaitGroup для ожидания завершения горутин
}

// NewService connects to Redis and starts the health check loop. A failed
// initial connection is returned as *UnavailableError together with a usable
// Service that keeps reconnecting.
func NewService(cfg config.RedisConfig) (*Service, error) {
	s := &Service{config: cfg}

	// Запуск горутины мониторинга здоровья соединения
	s.healthCtx, s.healthCancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.healthCheckLoop()

	client, err := newRedisClient(cfg)
	if err != nil {
		return s, &UnavailableError{Err: err}
	}
	s.setClient(client)
	return s, nil
}

// healthCheckLoop периодически проверяет доступность Redis и восстанавливает соединение при необходимости
func (s *Service) healthCheckLoop() {
	defer s.wg.Done()

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	currentInterval := initialReconnectInterval
	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			client := s.getClient()
			if client == nil {
				utils.Logger.Debug("Attempting to reconnect to Redis",
					zap.Duration("interval", currentInterval))

				newClient, err := newRedisClient(s.config)
				if err == nil {
					s.setClient(newClient)
					utils.Logger.Info("Successfully reconnected to Redis")

					currentInterval = initialReconnectInterval
					ticker.Reset(currentInterval)
					continue
				}

				utils.Logger.Debug("Failed to reconnect to Redis", zap.Error(err))

				// Увеличиваем интервал экспоненциально с добавлением джиттера ±10%
				currentInterval = nextInterval(currentInterval)
				jitter := time.Duration(rnd.Int63n(int64(currentInterval/5))) - currentInterval/10
				ticker.Reset(currentInterval + jitter)
				continue
			}

			ctx, cancel := context.WithTimeout(s.healthCtx, 2*time.Second)
			if err := client.Ping(ctx).Err(); err != nil {
				utils.Logger.Warn("Redis connection is unhealthy, closing and will attempt to reconnect",
					zap.Error(err))
				client.Close()
				s.setClient(nil)

				currentInterval = initialReconnectInterval
				ticker.Reset(currentInterval)
			}
			cancel()
		case <-s.healthCtx.Done():
			utils.Logger.Debug("Redis health check loop stopped")
			return
		}
	}
}

// nextInterval is the exponential backoff step, capped at maxReconnectInterval
func nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * reconnectMultiplier)
	if next > maxReconnectInterval {
		return maxReconnectInterval
	}
	return next
}

func (s *Service) setClient(client *redis.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStateLocked()

	s.client = client
	if client != nil {
		if !isClosed(s.ready) {
			close(s.ready)
		}
		if isClosed(s.lost) {
			s.lost = make(chan struct{})
		}
		return
	}
	if isClosed(s.ready) {
		s.ready = make(chan struct{})
	}
	if !isClosed(s.lost) {
		close(s.lost)
	}
}

func (s *Service) initStateLocked() {
	if s.ready == nil {
		s.ready = make(chan struct{})
		s.lost = make(chan struct{})
		close(s.lost)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Ready returns a channel that is closed once Redis is connected
func (s *Service) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStateLocked()
	return s.ready
}

// Lost returns a channel that is closed once the connection is dropped
func (s *Service) Lost() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStateLocked()
	return s.lost
}

func (s *Service) getClient() *redis.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Client returns the live client or *UnavailableError
func (s *Service) Client() (*redis.Client, error) {
	client := s.getClient()
	if client == nil {
		return nil, &UnavailableError{Err: fmt.Errorf("redis client is nil")}
	}
	return client, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	utils.Logger.Debug("Initializing Redis connection",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("password_set", map[bool]string{true: "yes", false: "no"}[cfg.Password != ""]),
	)

	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Добавляем пароль только если он указан
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		utils.Logger.Warn("Redis is not available",
			zap.Error(err),
			zap.String("host", cfg.Host),
			zap.String("port", cfg.Port),
		)
		return nil, fmt.Errorf("failed to connect to Redis at %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	utils.Logger.Info("Successfully connected to Redis",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.Int("db", opts.DB),
	)

	return client, nil
}

// Close closes Redis connection and stops the health check
func (s *Service) Close() error {
	if s.healthCancel != nil {
		s.healthCancel()
	}

	// Дожидаемся завершения горутины мониторинга
	s.wg.Wait()

	client := s.getClient()
	if client == nil {
		return nil
	}
	return client.Close()
}
