package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/serializer"
	"github.com/ValentinKolb/dGrid/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// invokeRPCRequest is a helper function used by the Invocation Channel to send one request
// to one member. It takes a shard ID, a request message, a transport layer and a serializer as parameters.
// The returned error is a channel fault (transport, encoding or protocol); an error produced by
// the member itself is carried inside the response and rebuilt with Message.AsError.
func invokeRPCRequest(ctx context.Context, shardId uint64, reqBytes []byte, reqType common.MessageType, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Send the request
	respBytes, err := transport.Send(ctx, shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", reqType, err)
	}

	// Check if the type of the response is the expected type, error responses are
	// sent for requests the server could not dispatch at all
	if resp.MsgType != reqType && resp.MsgType != common.MsgTError {
		return nil, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, reqType)
	}

	// Return the response
	return resp, nil
}

// invalid reports arguments that cannot be encoded for the wire
func invalid(what string, err error) error {
	return &grid.Error{Code: grid.RetCInvalidOperation, Msg: "invalid " + what, Err: err}
}

// decodeFailed reports a response whose payload could not be read
func decodeFailed(t common.MessageType, err error) error {
	return &grid.Error{Code: grid.RetCInternalError, Msg: fmt.Sprintf("failed to decode %s result", t), Err: err}
}
