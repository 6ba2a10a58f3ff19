package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

// Fully-qualified gRPC names. Messages are google.protobuf.Struct so no generated stubs are needed.
const (
	ServiceName   = "invoicetrust.v1.ExtractionService"
	MethodExtract = "/" + ServiceName + "/Extract"
	MethodMetrics = "/" + ServiceName + "/Metrics"
)

// ExtractionServer is the gRPC handler interface for ServiceDesc.
type ExtractionServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Metrics(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes invoicetrust.v1.ExtractionService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: extractHandler},
		{MethodName: "Metrics", Handler: metricsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoicetrust/v1/extraction.proto",
}

// RegisterExtractionServer registers srv on s.
func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func extractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodExtract}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func metricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).Metrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodMetrics}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).Metrics(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts ExtractionService to ExtractionServer.
//
// Extract request fields: "content" (base64, required), "filename", "mime_type", "document_id".
type GRPCServer struct {
	svc *ExtractionService
}

var _ ExtractionServer = (*GRPCServer)(nil)

func NewGRPCServer(svc *ExtractionService) *GRPCServer {
	return &GRPCServer{svc: svc}
}

func (g *GRPCServer) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentFromStruct(req)
	if err != nil {
		g.svc.logger.Error("grpc.extract.invalid_request", "error", err)
		return nil, common.InvalidArgumentError(err.Error())
	}
	res, err := g.svc.Extract(ctx, doc)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := toStruct(res)
	if err != nil {
		return nil, common.InternalErrorf("encode record: %v", err)
	}
	return out, nil
}

func (g *GRPCServer) Metrics(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(g.svc.Snapshot())
	if err != nil {
		return nil, common.InternalErrorf("encode metrics: %v", err)
	}
	return out, nil
}

func documentFromStruct(req *structpb.Struct) (extract.Document, error) {
	str := func(k string) string { return strings.TrimSpace(req.GetFields()[k].GetStringValue()) }

	raw := str("content")
	if raw == "" {
		return extract.Document{}, errors.New("content is required")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return extract.Document{}, fmt.Errorf("content must be base64: %w", err)
	}
	doc := extract.Document{
		ID:       str("document_id"),
		Name:     str("filename"),
		MIMEType: str("mime_type"),
		Content:  data,
	}
	if doc.ID == "" {
		doc.ID = doc.Name
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	return doc, nil
}

// grpcError maps engine errors onto status codes.
func grpcError(err error) error {
	var noExtraction *strategy.NoExtractionPossibleError
	switch {
	case errors.As(err, &noExtraction):
		return common.FailedPreconditionError(noExtraction.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return common.InternalError(err.Error())
	}
}

// toStruct converts any JSON-encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// NewGRPC builds a gRPC server with the extraction, health and reflection services registered.
func NewGRPC(svc *ExtractionService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(svc.logger))}, opts...)
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	// reflection for grpcurl
	reflection.Register(s)

	RegisterExtractionServer(s, NewGRPCServer(svc))
	return s
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// Client calls ExtractionService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Extract sends doc and returns the reply as a Struct with "record" and optional "record_id".
func (c *Client) Extract(ctx context.Context, doc extract.Document, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Name,
		"mime_type":   doc.MIMEType,
		"content":     base64.StdEncoding.EncodeToString(doc.Content),
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodExtract, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Metrics(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodMetrics, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
