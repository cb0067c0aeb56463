package rpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
)

type ClientConfig struct {
	Address          string
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	TLS              TLSConfig
	// DialOptions are appended last, mostly for tests.
	DialOptions []grpc.DialOption
}

// Client calls the exchange services of a running capd.
type Client struct {
	conn *grpc.ClientConn
}

func Dial(cfg ClientConfig) (*Client, error) {
	target, err := normalizeTargetAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	callOpts := []grpc.CallOption{grpc.CallContentSubtype(codecName)}
	if cfg.MaxRecvMsgSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallSendMsgSize(cfg.MaxSendMsgSize))
	}

	opts := []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(requestContextUnaryClientInterceptor()),
		grpc.WithDefaultCallOptions(callOpts...),
	}
	if cfg.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	if cfg.TLS.Enabled {
		creds, err := loadClientTLS(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) InvokeTool(ctx context.Context, req *ToolInvokeRequest) (*ToolInvokeReply, error) {
	out := new(ToolInvokeReply)
	if err := c.conn.Invoke(ctx, InvokeToolMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResourceAcquire(ctx context.Context, req *ResourceRequest) (*ResourceReply, error) {
	out := new(ResourceReply)
	if err := c.conn.Invoke(ctx, ResourceAcquireMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Describe(ctx context.Context) (*DescribeReply, error) {
	out := new(DescribeReply)
	if err := c.conn.Invoke(ctx, DescribeMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionReply, error) {
	out := new(ProvisionReply)
	if err := c.conn.Invoke(ctx, ProvisionMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks the standard gRPC health service over the default codec.
func (c *Client) Health(ctx context.Context) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := grpc_health_v1.NewHealthClient(c.conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{}, grpc.CallContentSubtype("proto"))
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
