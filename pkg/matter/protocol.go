package matter

import (
	"github.com/chipcore/matterd/pkg/exchange"
	"github.com/chipcore/matterd/pkg/im"
	"github.com/chipcore/matterd/pkg/message"
	"github.com/chipcore/matterd/pkg/securechannel"
)

// secureChannelAdapter adapts securechannel.Manager to exchange.ProtocolHandler.
type secureChannelAdapter struct {
	manager *securechannel.Manager
}

// newSecureChannelAdapter creates a new secure channel protocol adapter.
func newSecureChannelAdapter(manager *securechannel.Manager) *secureChannelAdapter {
	return &secureChannelAdapter{manager: manager}
}

// OnMessage handles a message on an existing exchange.
func (a *secureChannelAdapter) OnMessage(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	return a.route(ctx, opcode, payload)
}

// OnUnsolicited handles a new unsolicited message.
func (a *secureChannelAdapter) OnUnsolicited(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	return a.route(ctx, opcode, payload)
}

// route dispatches to securechannel.Manager.Route and sends the reply itself,
// since the reply opcode (e.g. PBKDFParamResponse for a PBKDFParamRequest) almost
// always differs from the request opcode and exchange.Manager has no way to carry
// that back through a plain []byte return.
func (a *secureChannelAdapter) route(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	resp, err := a.manager.Route(ctx.ID, &securechannel.Message{Opcode: securechannel.Opcode(opcode), Payload: payload})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	if ctx == nil {
		return resp.Payload, nil
	}
	if sendErr := ctx.SendMessage(uint8(resp.Opcode), resp.Payload, true); sendErr != nil {
		return nil, sendErr
	}
	return nil, nil
}

// Verify secureChannelAdapter implements exchange.ProtocolHandler.
var _ exchange.ProtocolHandler = (*secureChannelAdapter)(nil)

// imAdapter adapts im.Engine to exchange.ProtocolHandler.
type imAdapter struct {
	engine *im.Engine
}

// newIMAdapter creates a new interaction model protocol adapter.
func newIMAdapter(engine *im.Engine) *imAdapter {
	return &imAdapter{engine: engine}
}

// OnMessage handles a message on an existing exchange.
func (a *imAdapter) OnMessage(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	// Build protocol header for IM
	header := &message.ProtocolHeader{
		ProtocolID:     im.ProtocolID,
		ProtocolOpcode: opcode,
		ExchangeID:     ctx.ID,
	}

	return a.engine.OnMessage(ctx, header, payload)
}

// OnUnsolicited handles a new unsolicited message.
func (a *imAdapter) OnUnsolicited(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	// Build protocol header for IM
	header := &message.ProtocolHeader{
		ProtocolID:     im.ProtocolID,
		ProtocolOpcode: opcode,
		ExchangeID:     ctx.ID,
	}

	return a.engine.OnMessage(ctx, header, payload)
}

// Verify imAdapter implements exchange.ProtocolHandler.
var _ exchange.ProtocolHandler = (*imAdapter)(nil)
