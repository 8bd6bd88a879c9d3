package main

import (
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/barberbook/libs/grpcx"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/grpcserver"
)

func serveGRPC(addr string, d grpcserver.Decider, logger *slog.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpcx.NewServer()
	grpcserver.Register(srv, d, logger)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return srv.GracefulStop, nil
}
