// External signal source: an optional remote generator the strategy can
// consult instead of (or alongside) the built-in funding-rate rule,
// generalizing a narrow "send OHLC tick, get back a Signal" gRPC bridge
// pattern into "any remote signal generator". Rather than hand-authoring
// generated protobuf message/service stubs, the wire contract is expressed with
// the well-known google.golang.org/protobuf/types/known/structpb message
// so the call goes over a real grpc.ClientConn using genuinely vendored
// protobuf types instead of fabricated generated code.
package strategy

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const externalSignalMethod = "/trading.core.ExternalSignal/Evaluate"

// ExternalSignalClient calls out to a remote signal generator over gRPC.
type ExternalSignalClient struct {
	conn *grpc.ClientConn
}

// DialExternalSignal opens a connection to addr (e.g. a Python worker).
func DialExternalSignal(addr string) (*ExternalSignalClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("strategy: dial external signal source: %w", err)
	}
	return &ExternalSignalClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *ExternalSignalClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Evaluate sends the current and predicted funding rates and the risk
// level to the remote generator and parses back an Intent (kind, exit
// reason and confidence; the reply carries no SizeQuote). Any RPC failure is
// non-fatal to the core: callers should fall back to the built-in rule.
func (c *ExternalSignalClient) Evaluate(ctx context.Context, symbol string, currentRateBps, predictedRateBps int64, riskLevel string) (Intent, error) {
	req, err := structpb.NewStruct(map[string]any{
		"symbol":           symbol,
		"currentRateBps":   float64(currentRateBps),
		"predictedRateBps": float64(predictedRateBps),
		"riskLevel":        riskLevel,
	})
	if err != nil {
		return Intent{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(callCtx, externalSignalMethod, req, resp); err != nil {
		return Intent{}, fmt.Errorf("strategy: external signal RPC: %w", err)
	}

	kind := IntentKind(resp.Fields["kind"].GetStringValue())
	switch kind {
	case IntentEnterHedge, IntentExitHedge, IntentNoop:
	default:
		return Intent{}, fmt.Errorf("strategy: external signal returned unknown kind %q", kind)
	}
	return Intent{
		Kind:       kind,
		ExitReason: resp.Fields["exitReason"].GetStringValue(),
		Confidence: Confidence(resp.Fields["confidence"].GetStringValue()),
	}, nil
}
