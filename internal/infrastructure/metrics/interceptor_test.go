package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asakaida/sharing/pkg/cache/memorycache"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// testExporter is a shared exporter instance for all tests to avoid
// duplicate Prometheus metric registration errors.
var (
	testExporter     *PrometheusExporter
	testExporterOnce sync.Once
)

func getTestExporter(collector *Collector) *PrometheusExporter {
	testExporterOnce.Do(func() {
		testExporter = NewPrometheusExporter(collector)
	})
	return testExporter
}

// invoke runs the interceptor around a handler that returns err
func invoke(t *testing.T, interceptor grpc.UnaryServerInterceptor, method string, err error) error {
	t.Helper()
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		return "response", nil
	}
	_, got := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: method}, handler)
	return got
}

func TestUnaryServerInterceptor_RecordsStatus(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      codes.Code
		wantRejection uint64
		wantFault     uint64
	}{
		{name: "success", err: nil, wantCode: codes.OK},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "change on document:1 is required"), wantCode: codes.PermissionDenied, wantRejection: 1},
		{name: "unauthenticated", err: status.Error(codes.Unauthenticated, "anonymous"), wantCode: codes.Unauthenticated, wantRejection: 1},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "permission is required"), wantCode: codes.InvalidArgument, wantRejection: 1},
		{name: "internal", err: status.Error(codes.Internal, "failed to read user grants"), wantCode: codes.Internal, wantFault: 1},
		{name: "plain error is unknown", err: errors.New("boom"), wantCode: codes.Unknown, wantFault: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector()
			method := "/sharing.v1.SharingService/Check"

			err := invoke(t, UnaryServerInterceptor(collector, nil), method, tt.err)
			if err != tt.err {
				t.Fatalf("expected handler error %v to pass through, got %v", tt.err, err)
			}

			apiMetrics := collector.GetAPIMetrics()
			if got := apiMetrics.RequestCounts[method]; got != 1 {
				t.Errorf("request count = %d, want 1", got)
			}
			if got := apiMetrics.StatusCounts[method][tt.wantCode]; got != 1 {
				t.Errorf("status %s count = %d, want 1 (all: %v)", tt.wantCode, got, apiMetrics.StatusCounts[method])
			}
			if got := apiMetrics.RejectionCounts[method]; got != tt.wantRejection {
				t.Errorf("rejections = %d, want %d", got, tt.wantRejection)
			}
			if got := apiMetrics.FaultCounts[method]; got != tt.wantFault {
				t.Errorf("faults = %d, want %d", got, tt.wantFault)
			}
			if _, ok := apiMetrics.TotalDurationSeconds[method]; !ok {
				t.Error("expected duration to be recorded")
			}
		})
	}
}

func TestUnaryServerInterceptor_DenialsAndFaultsPerMethod(t *testing.T) {
	collector := NewCollector()
	interceptor := UnaryServerInterceptor(collector, getTestExporter(collector))

	update := "/sharing.v1.SharingService/UpdateGrant"
	prune := "/sharing.v1.SharingService/PruneOrphans"

	for i := 0; i < 3; i++ {
		invoke(t, interceptor, update, status.Error(codes.PermissionDenied, "denied"))
	}
	invoke(t, interceptor, update, nil)
	invoke(t, interceptor, prune, status.Error(codes.Internal, "backend down"))

	apiMetrics := collector.GetAPIMetrics()
	if got := apiMetrics.RequestCounts[update]; got != 4 {
		t.Errorf("UpdateGrant requests = %d, want 4", got)
	}
	if got := apiMetrics.StatusCounts[update][codes.PermissionDenied]; got != 3 {
		t.Errorf("UpdateGrant denials = %d, want 3", got)
	}
	if got := apiMetrics.StatusCounts[update][codes.OK]; got != 1 {
		t.Errorf("UpdateGrant successes = %d, want 1", got)
	}
	if got := apiMetrics.FaultCounts[update]; got != 0 {
		t.Errorf("UpdateGrant faults = %d, want 0", got)
	}
	if got := apiMetrics.FaultCounts[prune]; got != 1 {
		t.Errorf("PruneOrphans faults = %d, want 1", got)
	}
	if got := apiMetrics.RejectionCounts[prune]; got != 0 {
		t.Errorf("PruneOrphans rejections = %d, want 0", got)
	}
}

func TestIsRejection(t *testing.T) {
	for _, code := range []codes.Code{codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument, codes.NotFound, codes.Canceled} {
		if !IsRejection(code) {
			t.Errorf("IsRejection(%s) = false, want true", code)
		}
	}
	for _, code := range []codes.Code{codes.OK, codes.Internal, codes.Unknown, codes.Unavailable, codes.DeadlineExceeded} {
		if IsRejection(code) {
			t.Errorf("IsRejection(%s) = true, want false", code)
		}
	}
}

func TestDecisionRecorder(t *testing.T) {
	collector := NewCollector()
	recorder := NewDecisionRecorder(collector, getTestExporter(collector))

	recorder.RecordDecision("view", true)
	recorder.RecordDecision("view", true)
	recorder.RecordDecision("view", false)
	recorder.RecordDecision("delete", false)

	decisions := collector.GetDecisionMetrics()
	if decisions.Allowed["view"] != 2 {
		t.Errorf("expected 2 allowed view decisions, got %d", decisions.Allowed["view"])
	}
	if decisions.Denied["view"] != 1 {
		t.Errorf("expected 1 denied view decision, got %d", decisions.Denied["view"])
	}
	if decisions.Denied["delete"] != 1 {
		t.Errorf("expected 1 denied delete decision, got %d", decisions.Denied["delete"])
	}
	if _, ok := decisions.Allowed["delete"]; ok {
		t.Error("expected no allowed delete decisions")
	}
}

func TestCollector_CacheMetrics(t *testing.T) {
	collector := NewCollector()
	if m := collector.GetCacheMetrics(); m.Hits != 0 || m.KeysCurrent != 0 {
		t.Errorf("expected zero metrics without cache, got %+v", m)
	}

	c, err := memorycache.New(&memorycache.Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute, EnableMetrics: true})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()
	collector.SetCache(c)

	ctx := context.Background()
	if err := c.Set(ctx, "k", true, time.Minute); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	c.Get(ctx, "k")
	c.Get(ctx, "missing")

	m := collector.GetCacheMetrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", m)
	}
	if m.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", m.HitRate)
	}
	if m.KeysCurrent != 1 {
		t.Errorf("expected 1 key, got %d", m.KeysCurrent)
	}

	// Update must not panic and must tolerate a metrics reset
	exporter := getTestExporter(collector)
	exporter.collector = collector
	exporter.Update()
	c.ResetMetrics()
	exporter.Update()
}

func TestDelta(t *testing.T) {
	var last uint64
	if got := delta(5, &last); got != 5 || last != 5 {
		t.Errorf("delta(5) = %v, last = %d", got, last)
	}
	if got := delta(8, &last); got != 3 {
		t.Errorf("delta(8) = %v, want 3", got)
	}
	if got := delta(2, &last); got != 0 || last != 2 {
		t.Errorf("delta after reset = %v, last = %d", got, last)
	}
}
