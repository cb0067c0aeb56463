package rpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"

	"capd/internal/domain"
	"capd/internal/infra/resource"
	"capd/internal/infra/router"
)

// Description is what Describe reports about the running service.
type Description struct {
	Target       domain.ServiceTarget
	Registered   bool
	Tools        []string
	Resources    []string
	Dependencies []string
}

type Describer interface {
	Describe() Description
}

type Provisioner interface {
	Provision(ctx context.Context, in resource.ProvisionInput) (resource.ProvisionResult, error)
}

// ExchangeService implements the invoker, acquirer and provisioner services.
type ExchangeService struct {
	handler     router.Handler
	describer   Describer
	provisioner Provisioner
	logger      *zap.Logger
}

func NewExchangeService(handler router.Handler, describer Describer, provisioner Provisioner, logger *zap.Logger) *ExchangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeService{
		handler:     handler,
		describer:   describer,
		provisioner: provisioner,
		logger:      logger.Named("exchange"),
	}
}

func (s *ExchangeService) InvokeTool(ctx context.Context, req *ToolInvokeRequest) (*ToolInvokeReply, error) {
	if req.URI == "" {
		return nil, statusFromError("invoke tool", domain.E(domain.CodeInvalidArgument, "", "uri is required", nil))
	}
	reply := s.handler.Invoke(ctx, req.toDomain())
	return &ToolInvokeReply{IsError: reply.IsError, Content: reply.Content}, nil
}

func (s *ExchangeService) ResourceAcquire(ctx context.Context, req *ResourceRequest) (*ResourceReply, error) {
	if req.Location == "" {
		return nil, statusFromError("acquire resource", domain.E(domain.CodeInvalidArgument, "", "location is required", nil))
	}
	reply := s.handler.Acquire(ctx, req.toDomain())
	return &ResourceReply{IsError: reply.IsError, Content: reply.Content}, nil
}

func (s *ExchangeService) Describe(context.Context, *emptypb.Empty) (*DescribeReply, error) {
	if s.describer == nil {
		return &DescribeReply{}, nil
	}
	desc := s.describer.Describe()
	return &DescribeReply{
		Service:      desc.Target.Service,
		Address:      desc.Target.Host,
		Port:         desc.Target.Port,
		ServiceType:  desc.Target.ServiceType,
		Registered:   desc.Registered,
		Tools:        desc.Tools,
		Resources:    desc.Resources,
		Dependencies: desc.Dependencies,
	}, nil
}

func (s *ExchangeService) Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionReply, error) {
	if s.provisioner == nil {
		return nil, statusFromError("provision", domain.E(domain.CodeFailedPrecond, "", "provisioning is not configured", nil))
	}
	if req.URI == "" {
		return nil, statusFromError("provision", domain.E(domain.CodeInvalidArgument, "", "uri is required", nil))
	}
	result, err := s.provisioner.Provision(ctx, resource.ProvisionInput{
		URI:           req.URI,
		Configuration: req.Configuration,
		Secret:        req.Secret,
	})
	if err != nil {
		s.logger.Warn("provision failed", zap.String("uri", req.URI), zap.Error(err))
		return nil, statusFromError("provision", err)
	}
	return &ProvisionReply{ConfigurationURI: result.ConfigurationURI, SecretURI: result.SecretURI}, nil
}
