package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor counts every SharingService call by method and
// status code and observes its latency. exporter may be nil.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		method := info.FullMethod
		collector.RecordRequest(method)
		if exporter != nil {
			exporter.RecordRequest(method)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(collector, exporter, method, status.Code(err), time.Since(start))

		return resp, err
	}
}

// observeCall records the outcome of one finished call
func observeCall(collector *Collector, exporter *PrometheusExporter, method string, code codes.Code, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	collector.RecordDuration(method, seconds)
	collector.RecordStatus(method, code)

	if exporter == nil {
		return
	}
	exporter.RecordDuration(method, seconds)
	exporter.RecordStatus(method, code)
}

// IsRejection reports whether code means the request itself was refused
// rather than the server failing to answer it
func IsRejection(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition,
		codes.OutOfRange, codes.Canceled:
		return true
	default:
		return false
	}
}
