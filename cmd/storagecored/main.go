// storagecored hosts a disk manager and buffer pool for a single
// database file and exposes an administrative gRPC endpoint over it.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/storagecore/internal/logger"
	"github.com/nainya/storagecore/internal/metrics"
	"github.com/nainya/storagecore/internal/server"
	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/catalog"
	"github.com/nainya/storagecore/pkg/disk"
	"github.com/nainya/storagecore/pkg/txnlog"
)

var (
	port      = flag.Int("port", 50051, "Admin gRPC server port")
	obsPort   = flag.Int("obs-port", 9090, "Observability HTTP server port (metrics, health, pprof)")
	dbPath    = flag.String("db", "storagecore.db", "Database file path")
	poolSize  = flag.Int("pool-size", 256, "Buffer pool size in frames")
	logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logPretty = flag.Bool("log-pretty", false, "Pretty-print logs for development")
	walPath   = flag.String("wal", "", "Write-ahead log path (default: <db>.wal)")
)

func main() {
	flag.Parse()

	log := logger.NewLogger(logger.Config{Level: *logLevel, Pretty: *logPretty})
	log.LogServerStart(*port, *dbPath)

	dm, err := disk.Open(*dbPath, log)
	if err != nil {
		log.Fatal("failed to open database file").Err(err).Send()
	}
	defer dm.Close()

	pool := buffer.NewPool(*poolSize, dm, log)

	cat, err := catalog.Open(pool)
	if err != nil {
		log.Fatal("failed to open catalog").Err(err).Send()
	}
	_ = cat // available to a caller linking this package directly; the admin server exposes no data RPCs

	walFile := *walPath
	if walFile == "" {
		walFile = *dbPath + ".wal"
	}
	txlog := &txnlog.Manager{Path: walFile}
	if err := txlog.Open(); err != nil {
		log.Fatal("failed to open write-ahead log").Err(err).Send()
	}
	defer txlog.Close()

	m := metrics.NewMetrics()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal("failed to listen").Err(err).Send()
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)
	adminServer := server.NewServer(dm, pool, log)
	grpc_health_v1.RegisterHealthServer(grpcServer, adminServer)
	reflection.Register(grpcServer)

	obsServer := server.NewObservabilityServer(*obsPort, log)
	go func() {
		if err := obsServer.Start(); err != nil {
			log.Error("observability server stopped").Err(err).Send()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.LogServerShutdown()
		adminServer.Close()
		grpcServer.GracefulStop()
	}()

	log.LogServerReady(*port)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("admin server stopped").Err(err).Send()
	}
}
