package receiver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/pkg/wire"
	"github.com/thermowatch/thermowatch/server/internal/dashboard"
)

// Submitter records a sensor reading. *dashboard.Controller implements it.
type Submitter interface {
	SubmitSensor(ctx context.Context, sourceID string, r types.Reading) (dashboard.Measurement, error)
}

// Receiver implements wire.ReadingServiceServer.
// It validates each incoming reading and hands it to the dashboard.
type Receiver struct {
	wire.UnimplementedReadingServiceServer
	sub Submitter
}

// New creates a Receiver that submits accepted readings to sub.
func New(sub Submitter) *Receiver {
	return &Receiver{sub: sub}
}

// SendReading is the unary RPC handler called by thermowatch-agent instances.
func (r *Receiver) SendReading(ctx context.Context, msg *wire.ReadingMessage) (*wire.SendResponse, error) {
	if msg.DeviceID == "" {
		return nil, status.Error(codes.InvalidArgument, "device_id is required")
	}

	reading, err := types.NewReading(msg.LeftZones, msg.RightZones)
	if err == nil {
		err = reading.CheckRange(types.MinZoneTemp, types.MaxZoneTemp)
	}
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	reading.DeviceID = msg.DeviceID
	if msg.TimestampUnix > 0 {
		reading.CapturedAt = time.Unix(msg.TimestampUnix, 0).UTC()
	}

	m, err := r.sub.SubmitSensor(ctx, msg.SourceID, reading)
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		slog.Error("receiver: reading rejected", "device_id", msg.DeviceID, "err", err)
		return nil, status.Error(codes.Internal, "reading not recorded")
	}

	slog.Debug("receiver: reading recorded",
		"source_id", msg.SourceID,
		"device_id", msg.DeviceID,
		"risk", m.Analysis.Metrics.Risk,
		"persisted", m.Persisted,
	)

	resp := &wire.SendResponse{Ok: true, Risk: string(m.Analysis.Metrics.Risk)}
	if !m.Persisted {
		resp.Message = "recorded in memory only; storage unavailable"
	}
	return resp, nil
}

// LoggingInterceptor logs every unary call at Debug, and failures at Warn.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		slog.Warn("receiver: call failed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start).String(),
			"err", err,
		)
		return resp, err
	}
	slog.Debug("receiver: call",
		"method", info.FullMethod,
		"duration", time.Since(start).String(),
	)
	return resp, nil
}
