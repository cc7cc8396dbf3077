package api

import (
	"context"
	"encoding/json"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"catalog-browse-service/internal/catalog"
	"catalog-browse-service/internal/domain"
	"catalog-browse-service/internal/imagecache"
	"catalog-browse-service/internal/store"
)

// CatalogServiceName is the fully qualified gRPC service name.
const CatalogServiceName = "catalog.v1.CatalogService"

// CatalogServiceServer is the gRPC surface of the catalog. Messages are
// well-known protobuf types so clients need no generated stubs.
type CatalogServiceServer interface {
	// ListProducts takes the list filters as a Struct with the same keys as
	// the HTTP query (min_price, ordering, page, ...) and returns a Struct
	// with results, count, page, page_size, has_next and has_previous.
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetImage(context.Context, *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error)
}

// GRPCHandler implements CatalogServiceServer.
type GRPCHandler struct {
	products ProductQuerier
	images   ImageSource
	logger   log.FieldLogger
	validate *validator.Validate
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(products ProductQuerier, images ImageSource, logger log.FieldLogger) *GRPCHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &GRPCHandler{
		products: products,
		images:   images,
		logger:   logger,
		validate: validator.New(),
	}
}

// RegisterCatalogServiceServer registers srv on s.
func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

// --- Helper: Error Mapping ---
func (s *GRPCHandler) mapErrorToGrpcStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	entry := s.logger.WithError(err).WithField("method", method)

	switch {
	case errors.Is(err, catalog.ErrInvalidCriteria), errors.Is(err, errBadParam),
		errors.Is(err, imagecache.ErrInvalidImageID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		// Checked before the origin case: an origin fetch cut short by the caller wraps context.Canceled.
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, imagecache.ErrOriginUnavailable), errors.Is(err, imagecache.ErrClosed):
		entry.Warn("gRPC request hit an unavailable dependency")
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		entry.Error("gRPC request failed")
		return status.Errorf(codes.Internal, "failed to process %s", method)
	}
}

func (s *GRPCHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input, err := productQueryFromStruct(req)
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "ListProducts")
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	criteria, err := input.Criteria()
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "ListProducts")
	}

	result, err := s.products.List(ctx, criteria)
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "ListProducts")
	}

	results, err := productsToValues(result.Items)
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "ListProducts")
	}
	resp, err := structpb.NewStruct(map[string]interface{}{
		"results":      results,
		"count":        result.TotalCount,
		"page":         result.Page,
		"page_size":    result.PageSize,
		"has_next":     result.HasNext(),
		"has_previous": result.HasPrevious(),
	})
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(errors.Wrap(err, "encode response"), "ListProducts")
	}
	return resp, nil
}

func (s *GRPCHandler) GetImage(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error) {
	imageID := req.GetValue()
	if imageID <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "image ID must be a positive integer")
	}
	data, err := s.images.Resolve(ctx, imageID)
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "GetImage")
	}
	return wrapperspb.Bytes(data), nil
}

// --- Conversion helpers ---

// productsToValues goes through JSON so the Struct carries the same field names
// as the HTTP API.
func productsToValues(products []domain.Product) ([]interface{}, error) {
	raw, err := json.Marshal(products)
	if err != nil {
		return nil, errors.Wrap(err, "marshal products")
	}
	values := []interface{}{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "unmarshal products")
	}
	return values, nil
}

func productQueryFromStruct(req *structpb.Struct) (ProductQueryInput, error) {
	var in ProductQueryInput
	fields := req.GetFields()

	number := func(key string) (*float64, error) {
		v, ok := fields[key]
		if !ok {
			return nil, nil
		}
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
			return nil, nil
		}
		n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
		if !isNumber {
			return nil, errors.Wrapf(errBadParam, "%s must be a number", key)
		}
		f := n.NumberValue
		return &f, nil
	}
	integer := func(key string) (*int64, error) {
		f, err := number(key)
		if err != nil || f == nil {
			return nil, err
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if *f >= math.MaxInt64 || *f < math.MinInt64 {
			return nil, errors.Wrapf(errBadParam, "%s is out of range", key)
		}
		if *f != float64(int64(*f)) {
			return nil, errors.Wrapf(errBadParam, "%s must be an integer", key)
		}
		i := int64(*f)
		return &i, nil
	}
	text := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok {
			return "", nil
		}
		s, isString := v.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return "", errors.Wrapf(errBadParam, "%s must be a string", key)
		}
		return s.StringValue, nil
	}

	var err error
	if in.MinPrice, err = number("min_price"); err != nil {
		return in, err
	}
	if in.MaxPrice, err = number("max_price"); err != nil {
		return in, err
	}
	if in.MinRating, err = number("min_rating"); err != nil {
		return in, err
	}
	if in.MaxRating, err = number("max_rating"); err != nil {
		return in, err
	}
	if in.MinReviews, err = integer("min_reviews"); err != nil {
		return in, err
	}
	if in.MaxReviews, err = integer("max_reviews"); err != nil {
		return in, err
	}
	if in.Search, err = text("search"); err != nil {
		return in, err
	}
	if in.Ordering, err = text("ordering"); err != nil {
		return in, err
	}
	page, err := integer("page")
	if err != nil {
		return in, err
	}
	if page != nil {
		p := int(*page)
		in.Page = &p
	}
	pageSize, err := integer("page_size")
	if err != nil {
		return in, err
	}
	if pageSize != nil {
		ps := int(*pageSize)
		in.PageSize = &ps
	}
	return in, nil
}

// --- Service descriptor ---

func _CatalogService_ListProducts_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServiceServer).ListProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + CatalogServiceName + "/ListProducts",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServiceServer).ListProducts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _CatalogService_GetImage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServiceServer).GetImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + CatalogServiceName + "/GetImage",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServiceServer).GetImage(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProducts", Handler: _CatalogService_ListProducts_Handler},
		{MethodName: "GetImage", Handler: _CatalogService_GetImage_Handler},
	},
	Streams: []grpc.StreamDesc{},
}
