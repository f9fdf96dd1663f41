package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	profilescollector "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

// WriteOltpProfile stores the profile as a binary protobuf file.
func WriteOltpProfile(data *profilespb.ProfilesData, filename string) error {
	b, err := proto.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal OTLP profile: %w", err)
	}
	return os.WriteFile(filename, b, 0o644)
}

// OltpClient pushes profiles to an OTLP collector over gRPC.
type OltpClient struct {
	conn   *grpc.ClientConn
	client profilescollector.ProfilesServiceClient
}

func NewOltpClient(endpoint string, disableTLS bool, opts ...grpc.DialOption) (*OltpClient, error) {
	creds := credentials.NewClientTLSFromCert(nil, "")
	if disableTLS {
		creds = insecure.NewCredentials()
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial OTLP collector %s: %w", endpoint, err)
	}
	return &OltpClient{conn: conn, client: profilescollector.NewProfilesServiceClient(conn)}, nil
}

func (c *OltpClient) Export(ctx context.Context, data *profilespb.ProfilesData) error {
	resp, err := c.client.Export(ctx, &profilescollector.ExportProfilesServiceRequest{
		ResourceProfiles: data.ResourceProfiles,
		Dictionary:       data.Dictionary,
	})
	if err != nil {
		return fmt.Errorf("export OTLP profile: %w", err)
	}
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedProfiles() > 0 {
		slog.Warn("Collector rejected part of the profile",
			"rejected", ps.GetRejectedProfiles(), "message", ps.GetErrorMessage())
	}
	return nil
}

func (c *OltpClient) Close() error {
	return c.conn.Close()
}
