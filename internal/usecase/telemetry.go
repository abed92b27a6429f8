package usecase

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"schoolchat/pkg/logger"
)

var (
	tracer = otel.Tracer("schoolchat/usecase")
	meter  = otel.Meter("schoolchat/usecase")

	messagesSent metric.Int64Counter
)

func init() {
	var err error
	messagesSent, err = meter.Int64Counter("chat.messages.sent",
		metric.WithDescription("Messages appended to a room"))
	if err != nil {
		logger.Warn("Cannot create chat.messages.sent counter: %v", err)
	}
}
