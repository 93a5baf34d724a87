// corekv runs the storage/recovery core as a standalone server: it
// opens (or creates) a database directory, runs crash recovery if
// needed, and serves the admin RPC surface plus a Prometheus/pprof
// observability endpoint until signaled to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/corekv/internal/adminrpc"
	"github.com/nainya/corekv/internal/logger"
	"github.com/nainya/corekv/internal/metrics"
	"github.com/nainya/corekv/pkg/database"
)

var (
	port     = flag.Int("port", 50051, "admin RPC port")
	httpPort = flag.Int("http-port", 9090, "observability HTTP port (metrics, health, pprof)")
	dbDir    = flag.String("dir", "corekv-data", "database directory")
	logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
	pretty   = flag.Bool("log-pretty", false, "pretty-print logs for local development")
)

func main() {
	flag.Parse()

	logger.InitGlobalLogger(logger.Config{Level: *logLevel, Pretty: *pretty})
	log := logger.GetGlobalLogger()
	met := metrics.GetGlobalMetrics()

	log.Info("opening database").Str("dir", *dbDir).Send()
	db, err := database.Open(database.Config{Dir: *dbDir, Logger: log, Metrics: met})
	if err != nil {
		log.Fatal("failed to open database").Err(err).Send()
	}
	defer db.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal("failed to listen").Err(err).Send()
	}

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(adminrpc.Codec),
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
		grpc.UnaryInterceptor(adminrpc.MetricsInterceptor(met, log)),
	)
	adminrpc.Register(grpcServer, adminrpc.NewServer(db.Pool, db.Checkpoint, db.LSM))
	reflection.Register(grpcServer)

	obsServer := adminrpc.NewObservabilityServer(*httpPort, log)
	go func() {
		if err := obsServer.Start(); err != nil {
			log.Error("observability server exited").Err(err).Send()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down").Send()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		obsServer.Shutdown(ctx)
		grpcServer.GracefulStop()
	}()

	log.Info("admin rpc listening").Int("port", *port).Send()
	log.Info("observability listening").Int("port", *httpPort).Send()
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("grpc server failed").Err(err).Send()
	}
}
