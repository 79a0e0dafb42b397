package handler

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/core/service"
	"github.com/rl1809/storefront-cart/internal/port"
)

const CartServiceName = "storefront.v1.CartService"

// CartServiceServer is the storefront cart API over gRPC. Requests and
// responses are google.protobuf.Struct messages; every request carries a
// "session_id" field.
type CartServiceServer interface {
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GoToStep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CartServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CartServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + CartServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CartServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var cartServiceDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetCart", CartServiceServer.GetCart),
		unaryHandler("AddItem", CartServiceServer.AddItem),
		unaryHandler("UpdateQuantity", CartServiceServer.UpdateQuantity),
		unaryHandler("RemoveItem", CartServiceServer.RemoveItem),
		unaryHandler("ClearCart", CartServiceServer.ClearCart),
		unaryHandler("GetCheckout", CartServiceServer.GetCheckout),
		unaryHandler("GoToStep", CartServiceServer.GoToStep),
		unaryHandler("PlaceOrder", CartServiceServer.PlaceOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/cart.proto",
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&cartServiceDesc, srv)
}

type GRPCHandler struct {
	sessions     *service.SessionManager
	catalog      port.CatalogLookup
	orderService *service.OrderService
}

func NewGRPCHandler(sessions *service.SessionManager, catalog port.CatalogLookup, orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{
		sessions:     sessions,
		catalog:      catalog,
		orderService: orderService,
	}
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		return cartFields(sess.Cart.Snapshot()), nil
	})
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := itemKey(req)
	if err != nil {
		return nil, err
	}
	quantity, ok, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}
	if !ok {
		quantity = 1
	}

	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		err := sess.AddProduct(ctx, h.catalog, productID, size, quantity)
		if errors.Is(err, port.ErrVariantNotFound) {
			return nil, status.Error(codes.NotFound, "product not found")
		}
		if err != nil {
			return nil, status.Errorf(codes.Internal, "add to cart: %v", err)
		}
		return cartFields(sess.Cart.Snapshot()), nil
	})
}

func (h *GRPCHandler) UpdateQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := itemKey(req)
	if err != nil {
		return nil, err
	}
	quantity, ok, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "quantity is required")
	}

	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		sess.Cart.UpdateQuantity(productID, size, quantity)
		return cartFields(sess.Cart.Snapshot()), nil
	})
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, size, err := itemKey(req)
	if err != nil {
		return nil, err
	}

	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		sess.Cart.RemoveItem(productID, size)
		return cartFields(sess.Cart.Snapshot()), nil
	})
}

func (h *GRPCHandler) ClearCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		sess.Cart.Clear()
		return cartFields(sess.Cart.Snapshot()), nil
	})
}

func (h *GRPCHandler) GetCheckout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		return checkoutFields(sess.Flow), nil
	})
}

// GoToStep reports a gate rejection in the response ("moved": false) rather
// than as an RPC error.
func (h *GRPCHandler) GoToStep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	step, ok, err := intField(req, "step")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "step is required")
	}
	target := domain.Step(step)

	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		moved, err := sess.Flow.GoToStep(target)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		fields := checkoutFields(sess.Flow)
		fields["moved"] = moved
		if !moved {
			blocker, _ := sess.Flow.BlockingStep(target)
			fields["blocked_at"] = blocker.String()
		}
		return fields, nil
	})
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	requestID := fields["request_id"].GetStringValue()
	if requestID == "" {
		return nil, status.Error(codes.InvalidArgument, "request_id is required")
	}
	contact := domain.Contact{
		Name:    fields["name"].GetStringValue(),
		Email:   fields["email"].GetStringValue(),
		Address: fields["address"].GetStringValue(),
	}

	return h.withSession(ctx, req, func(sess *service.Session) (map[string]interface{}, error) {
		order, err := h.orderService.PlaceOrder(ctx, sess, requestID, contact)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrDuplicateRequest):
			return nil, status.Error(codes.AlreadyExists, "duplicate request")
		case errors.Is(err, service.ErrNotAtConfirm), errors.Is(err, service.ErrEmptyCart):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		case errors.Is(err, service.ErrServiceClosed):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Errorf(codes.Internal, "place order: %v", err)
		}

		return map[string]interface{}{
			"order_id":   order.ID,
			"item_count": order.ItemCount,
			"subtotal":   order.Subtotal.String(),
		}, nil
	})
}

// intField reads a whole number from req. Fractional, non-numeric and
// out-of-range values are rejected rather than truncated.
func intField(req *structpb.Struct, name string) (int, bool, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int(n.NumberValue), true, nil
}

func (h *GRPCHandler) withSession(ctx context.Context, req *structpb.Struct, fn func(*service.Session) (map[string]interface{}, error)) (*structpb.Struct, error) {
	id := req.GetFields()["session_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}

	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "load session: %v", err)
	}

	var out map[string]interface{}
	err = sess.Do(func(s *service.Session) error {
		var err error
		out, err = fn(s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(out)
}

// LogUnary logs every unary call with its outcome.
func LogUnary(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		entry := log.WithFields(logrus.Fields{
			"grpc.method":  info.FullMethod,
			"grpc.code":    status.Code(err).String(),
			"grpc.took_ms": int64(time.Since(start) / time.Millisecond),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc complete")
		}
		return resp, err
	}
}

func itemKey(req *structpb.Struct) (string, string, error) {
	fields := req.GetFields()
	productID := fields["product_id"].GetStringValue()
	size := fields["size"].GetStringValue()
	if productID == "" || size == "" {
		return "", "", status.Error(codes.InvalidArgument, "product_id and size are required")
	}
	return productID, size, nil
}

func cartFields(s domain.CartSnapshot) map[string]interface{} {
	items := make([]interface{}, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, map[string]interface{}{
			"product_id": item.ProductID,
			"size":       item.Size,
			"name":       item.Name,
			"image":      item.Image,
			"unit_price": item.UnitPrice.String(),
			"quantity":   item.Quantity,
		})
	}
	return map[string]interface{}{
		"items":      items,
		"item_count": s.ItemCount,
		"subtotal":   s.Subtotal.String(),
	}
}

func checkoutFields(flow *service.CheckoutFlow) map[string]interface{} {
	steps := make([]interface{}, 0, 4)
	for _, v := range flow.Steps() {
		steps = append(steps, map[string]interface{}{
			"step":   int(v.Step),
			"name":   v.Name,
			"status": string(v.Status),
		})
	}
	return map[string]interface{}{
		"step":        int(flow.Current()),
		"name":        flow.Current().String(),
		"can_proceed": flow.CanProceed(),
		"steps":       steps,
	}
}
