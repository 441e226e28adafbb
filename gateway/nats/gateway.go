// Package nats exposes the tool surface over NATS request/reply. Tool calls
// arrive on <prefix>.tool.<name> with JSON arguments; the reply is the tool
// result or an error payload. A queue group shares the work across service
// instances.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360/socketkit/errors"
	"github.com/c360/socketkit/natsclient"
	"github.com/c360/socketkit/tool"
)

// GatewayDeps holds runtime dependencies for the NATS gateway.
type GatewayDeps struct {
	Client        *natsclient.Client
	Dispatcher    *tool.Dispatcher
	SubjectPrefix string
	QueueGroup    string
	Logger        *slog.Logger
}

// Gateway serves tool calls arriving over NATS.
type Gateway struct {
	client        *natsclient.Client
	dispatcher    *tool.Dispatcher
	subjectPrefix string
	queueGroup    string
	logger        *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewGateway creates a NATS gateway. The client must be connected before
// Start is called.
func NewGateway(deps GatewayDeps) (*Gateway, error) {
	if deps.Client == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil nats client"),
			"Gateway", "NewGateway", "dependency check")
	}
	if deps.Dispatcher == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil dispatcher"),
			"Gateway", "NewGateway", "dependency check")
	}
	if deps.SubjectPrefix == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: subject prefix", errors.ErrMissingConfig),
			"Gateway", "NewGateway", "subject configuration")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queueGroup := deps.QueueGroup
	if queueGroup == "" {
		queueGroup = "socketkit-tools"
	}

	return &Gateway{
		client:        deps.Client,
		dispatcher:    deps.Dispatcher,
		subjectPrefix: deps.SubjectPrefix,
		queueGroup:    queueGroup,
		logger:        logger.With("component", "nats-gateway"),
	}, nil
}

// Start subscribes to the tool subject space.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Gateway", "Start", "nats gateway already running")
	}

	subject := g.subjectPrefix + ".tool.*"
	sub, err := g.client.QueueSubscribe(subject, g.queueGroup, g.handleMessage)
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Start",
			fmt.Sprintf("subscribe %s", subject))
	}

	g.sub = sub
	g.logger.Info("NATS gateway listening", "subject", subject, "queue", g.queueGroup)
	return nil
}

// Stop drains the tool subscription. In-flight handlers finish before the
// drain completes.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "drain subscription")
	}
	return nil
}

// handleMessage dispatches one tool request and replies with the result.
// Requests without a reply subject are executed for their side effects only.
func (g *Gateway) handleMessage(msg *nats.Msg) {
	name := toolNameFromSubject(msg.Subject)

	result, err := g.dispatcher.Dispatch(context.Background(), name, msg.Data)

	var payload any = result
	if err != nil {
		payload = tool.NewErrorPayload(err)
	}

	if msg.Reply == "" {
		if err != nil {
			g.logger.Warn("Tool call without reply subject failed",
				"subject", msg.Subject, "error", err)
		}
		return
	}

	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		g.logger.Error("Reply encode failed", "subject", msg.Subject, "error", marshalErr)
		data, _ = json.Marshal(tool.ErrorPayload{
			Error:   "internal_error",
			Message: "response encoding failed",
		})
	}

	if err := msg.Respond(data); err != nil {
		g.logger.Warn("Reply publish failed", "subject", msg.Subject, "error", err)
	}
}

// toolNameFromSubject extracts the tool name token from
// <prefix>.tool.<name>. Prefixes may themselves contain dots.
func toolNameFromSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return subject
	}
	return subject[idx+1:]
}
