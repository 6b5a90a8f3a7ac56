package server

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server ties the router to its transports: an HTTP listener that normalizes
// requests into the router's envelope, and a gRPC server exposing the
// standard health service fed by the same backend probes.
type Server struct {
	config   *Config
	env      Environment
	backends *Backends
	cache    Cache
	observer Observer
	router   *Router
	logger   *logrus.Logger
	grpcSrv  *grpc.Server
	health   *health.Server
}

// NewServer creates a server from an explicit config and environment
// snapshot. Backend handles are resolved once here and threaded into the
// router; nothing is cached at module level.
func NewServer(config *Config, env Environment) (*Server, error) {
	backends, err := SelectBackends(env, config)
	if err != nil {
		return nil, fmt.Errorf("failed to select backends: %v", err)
	}

	logObserver := NewLogObserver(config.Server.LogLevel)
	logger := logObserver.Logger()

	var observer Observer = logObserver
	if !env.UseSimulator() && !env.UseEmulator {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(env.Region)})
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Failed to create CloudWatch session; metrics stay local")
		} else {
			observer = NewMultiObserver(logObserver, NewCloudWatchObserver(sess, logger))
		}
	}

	// Redis cache with NoOpCache fallback when unconfigured or unreachable.
	var cache Cache = &NoOpCache{}
	if config.AWS.ElastiCache.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		redisCache, err := NewRedisCache(ctx, config.AWS.ElastiCache.Address, config.AWS.ElastiCache.TTL)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Failed to connect to Redis cache; continuing without cache")
		} else {
			cache = redisCache
			logger.WithField("address", config.AWS.ElastiCache.Address).Info("Connected to Redis cache")
		}
	}

	router := NewRouter(backends, cache, observer, config, env)

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	return &Server{
		config:   config,
		env:      env,
		backends: backends,
		cache:    cache,
		observer: observer,
		router:   router,
		logger:   logger,
		grpcSrv:  grpcSrv,
		health:   healthSrv,
	}, nil
}

// Router exposes the request router, mainly for tests and embedding.
func (s *Server) Router() *Router {
	return s.router
}

// Start runs the gRPC and HTTP listeners. It blocks until the HTTP listener
// fails.
func (s *Server) Start() error {
	s.refreshHealth(context.Background())

	go func() {
		addr := fmt.Sprintf(":%d", s.config.Server.GRPCPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			s.logger.WithField("error", err.Error()).Fatalf("Failed to listen on %s", addr)
		}
		s.logger.WithField("addr", addr).Info("gRPC server listening")
		if err := s.grpcSrv.Serve(lis); err != nil {
			s.logger.WithField("error", err.Error()).Fatal("Failed to serve gRPC")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)

	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	s.logger.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.env.Name(),
	}).Info("HTTP server listening")
	return http.ListenAndServe(addr, mux)
}

// Stop stops the gRPC server and closes the cache client.
func (s *Server) Stop() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.grpcSrv.GracefulStop()
	if closer, ok := s.cache.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// refreshHealth probes both backends and mirrors the result into the gRPC
// health service.
func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if _, err := s.backends.Store.Scan(ctx, 1); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if _, err := s.backends.BlobStore.List(ctx, s.config.AWS.S3.Bucket, "", 1); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
}

// handleHTTP adapts an incoming HTTP request into the router's envelope and
// writes the router's response back out.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	req := normalizeRequest(r)
	resp := s.router.Handle(r.Context(), req)

	if req.Path == "/health" {
		// Keep the gRPC health service in step with the HTTP probe.
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if resp.StatusCode == http.StatusOK {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus("", status)
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	fmt.Fprint(w, resp.Body)
}

// normalizeRequest flattens an *http.Request into the router's descriptor.
// Only the first value of repeated query parameters and headers is kept.
func normalizeRequest(r *http.Request) *Request {
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	headers := make(map[string]string)
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}

	var body string
	if r.Body != nil {
		if data, err := ioutil.ReadAll(r.Body); err == nil {
			body = string(data)
		}
		r.Body.Close()
	}

	return &Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   query,
		Headers: headers,
		Body:    body,
	}
}
