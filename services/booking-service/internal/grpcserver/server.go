// Package grpcserver exposes intent submission over gRPC for internal callers.
// Messages are google.protobuf.Struct so no generated stubs are needed.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

const (
	ServiceName  = "barberbook.booking.v1.IntentService"
	SubmitMethod = "/" + ServiceName + "/Submit"
)

type IntentServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "barberbook/booking/v1/intent.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntentServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntentServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Submit is the client side of IntentService.Submit.
func Submit(ctx context.Context, cc grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, SubmitMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type Decider interface {
	Handle(ctx context.Context, in engine.Intent) engine.Decision
	Shop() *shop.Shop
}

type server struct {
	decider Decider
	logger  *slog.Logger
}

func Register(s *grpc.Server, d Decider, logger *slog.Logger) {
	s.RegisterService(&ServiceDesc, &server{decider: d, logger: logger})
}

// Submit returns every decision as a result. Only malformed requests fail the call.
func (s *server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := s.toIntent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d := s.decider.Handle(ctx, in)
	if d.Reason == engine.ReasonStoreUnavailable {
		s.logger.Error("grpc intent failed", "kind", d.Kind, "detail", d.Detail)
		return nil, status.Error(codes.Unavailable, "appointment store unavailable")
	}
	out, err := structpb.NewStruct(decisionFields(d))
	if err != nil {
		return nil, status.Error(codes.Internal, "encode decision")
	}
	return out, nil
}

func (s *server) toIntent(req *structpb.Struct) (engine.Intent, error) {
	str := func(key string) string {
		return strings.TrimSpace(req.GetFields()[key].GetStringValue())
	}
	kind, ok := engine.ParseKind(str("kind"))
	if !ok {
		return engine.Intent{}, errors.New("unknown kind")
	}
	loc := s.decider.Shop().Location
	in := engine.Intent{
		CustomerRef:   str("customer_ref"),
		CustomerName:  str("customer_name"),
		Service:       str("service"),
		Kind:          kind,
		AppointmentID: str("appointment_id"),
		Recipient:     str("recipient"),
		Reason:        str("reason"),
	}
	if raw := str("at"); raw != "" {
		at, err := engine.ParseTime(raw, loc)
		if err != nil {
			return engine.Intent{}, err
		}
		in.At = &at
	}
	if rs, re := str("range_start"), str("range_end"); rs != "" || re != "" {
		start, err := engine.ParseTime(rs, loc)
		if err != nil {
			return engine.Intent{}, err
		}
		end, err := engine.ParseTime(re, loc)
		if err != nil {
			return engine.Intent{}, err
		}
		in.Range = &model.Interval{Start: start, End: end}
	}
	return in, nil
}

func decisionFields(d engine.Decision) map[string]any {
	alts := make([]any, 0, len(d.Alternatives))
	for _, t := range d.Alternatives {
		alts = append(alts, t.UTC().Format(time.RFC3339))
	}
	out := map[string]any{
		"kind":         string(d.Kind),
		"outcome":      string(d.Outcome),
		"reason":       string(d.Reason),
		"detail":       d.Detail,
		"service":      d.Service.Key,
		"alternatives": alts,
	}
	if a := d.Appointment; a != nil {
		out["appointment"] = map[string]any{
			"appointment_id": a.ID,
			"customer_ref":   a.CustomerRef,
			"service":        a.Service,
			"start_time":     a.StartTime.UTC().Format(time.RFC3339),
			"end_time":       a.EndTime.UTC().Format(time.RFC3339),
			"status":         string(a.Status),
		}
	}
	if d.Previous != nil {
		out["previous_start"] = d.Previous.Start.UTC().Format(time.RFC3339)
	}
	return out
}
