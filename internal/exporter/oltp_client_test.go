package exporter

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	profilescollector "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
)

type fakeCollector struct {
	profilescollector.UnimplementedProfilesServiceServer

	mu       sync.Mutex
	received []*profilescollector.ExportProfilesServiceRequest
}

func (f *fakeCollector) Export(_ context.Context, req *profilescollector.ExportProfilesServiceRequest) (*profilescollector.ExportProfilesServiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, req)
	return &profilescollector.ExportProfilesServiceResponse{}, nil
}

func startFakeCollector(t *testing.T) (*fakeCollector, *bufconn.Listener) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	collector := &fakeCollector{}
	profilescollector.RegisterProfilesServiceServer(srv, collector)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return collector, lis
}

func TestOltpClient_Export(t *testing.T) {
	collector, lis := startFakeCollector(t)

	client, err := NewOltpClient("passthrough:///bufnet", true,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer client.Close()

	data := BuildOltpProfile(
		[]profiler.Sample{{Stack: []string{"main", "fib"}}, {Stack: []string{"main"}}},
		nil, OltpInfo{ServiceName: "guest", SampleRate: 1},
		func() uint64 { return 42 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Export(ctx, data))

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.Len(t, collector.received, 1)
	req := collector.received[0]
	assert.True(t, proto.Equal(data.Dictionary, req.Dictionary))
	require.Len(t, req.ResourceProfiles, 1)
	assert.True(t, proto.Equal(data.ResourceProfiles[0], req.ResourceProfiles[0]))
}
