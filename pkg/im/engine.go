package im

import (
	"bytes"
	"sync"

	"github.com/chipcore/matterd/pkg/acl"
	"github.com/chipcore/matterd/pkg/exchange"
	imsg "github.com/chipcore/matterd/pkg/im/message"
	"github.com/chipcore/matterd/pkg/message"
	"github.com/chipcore/matterd/pkg/tlv"
	"github.com/pion/logging"
)

// ProtocolID is the Interaction Model protocol ID.
// Spec: Section 10.2.1
const ProtocolID message.ProtocolID = 0x0001

// Engine is the Interaction Model engine.
// It implements exchange.ExchangeDelegate for the IM protocol.
//
// This simplified engine supports:
//   - ReadRequest → ReportData
//   - WriteRequest → WriteResponse
//   - InvokeRequest → InvokeResponse
//   - StatusResponse (for chunked flows)
//
// It does NOT support (for commissioning simplicity):
//   - Subscriptions
//   - Timed interactions
//   - Complex chunking
//
// Spec Reference: Chapter 8 "Interaction Model Specification"
type Engine struct {
	dispatcher Dispatcher
	aclChecker *acl.Checker

	// Handlers are pooled for reuse across requests on the same exchange,
	// since chunked reads/invokes continue against the same handler.
	readHandler   *ReadHandler
	writeHandler  *WriteHandler
	invokeHandler *InvokeHandler

	maxPayload int

	log logging.LeveledLogger

	mu sync.Mutex
}

// EngineConfig configures the Engine.
type EngineConfig struct {
	// Dispatcher routes operations to cluster implementations.
	// Required.
	Dispatcher Dispatcher

	// ACLChecker performs access control checks.
	// Optional - if nil, ACL checks are skipped.
	ACLChecker *acl.Checker

	// MaxPayload is the maximum payload size for responses.
	// Defaults to DefaultMaxPayload if 0.
	MaxPayload int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewEngine creates a new IM engine.
func NewEngine(config EngineConfig) *Engine {
	maxPayload := config.MaxPayload
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	dispatcher := config.Dispatcher
	if dispatcher == nil {
		dispatcher = NullDispatcher{}
	}

	e := &Engine{
		dispatcher:    dispatcher,
		aclChecker:    config.ACLChecker,
		maxPayload:    maxPayload,
		readHandler:   NewReadHandler(nil, maxPayload),
		writeHandler:  NewWriteHandler(dispatcher),
		invokeHandler: NewInvokeHandler(nil, maxPayload),
	}

	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("im")
	}

	return e
}

// actionTable maps each IM action opcode to its handler and the opcode its
// response is sent under, replacing a six-armed opcode switch with one
// lookup. OpcodeStatusResponse is handled separately in OnMessage since its
// handler picks its own response opcode instead of using a fixed one.
var actionTable = map[imsg.Opcode]struct {
	handle   func(*Engine, *exchange.ExchangeContext, []byte) ([]byte, error)
	response imsg.Opcode
}{
	imsg.OpcodeReadRequest:   {(*Engine).handleReadRequest, imsg.OpcodeReportData},
	imsg.OpcodeWriteRequest:  {(*Engine).handleWriteRequest, imsg.OpcodeWriteResponse},
	imsg.OpcodeInvokeRequest: {(*Engine).handleInvokeRequest, imsg.OpcodeInvokeResponse},
}

// unsupportedActions are recognized opcodes this simplified engine declines
// rather than rejecting outright, since a controller retrying after
// StatusUnsupportedAccess behaves differently than after an unknown action.
var unsupportedActions = map[imsg.Opcode]bool{
	imsg.OpcodeSubscribeRequest: true,
	imsg.OpcodeTimedRequest:     true,
}

// OnMessage implements exchange.ExchangeDelegate.
// This is the main entry point for IM messages.
//
// The engine sends responses directly via ctx.SendMessage with the correct
// response opcode, then returns (nil, nil) so the exchange layer doesn't
// send again.
//
// Spec: 8.2.4 "Action" - defines valid opcodes
func (e *Engine) OnMessage(
	ctx *exchange.ExchangeContext,
	header *message.ProtocolHeader,
	payload []byte,
) ([]byte, error) {
	opcode := imsg.Opcode(header.ProtocolOpcode)

	if opcode == imsg.OpcodeStatusResponse {
		return e.handleStatusResponse(ctx, payload)
	}

	action, known := actionTable[opcode]
	responseOpcode := imsg.OpcodeStatusResponse
	var responsePayload []byte
	var err error

	switch {
	case known:
		responsePayload, err = action.handle(e, ctx, payload)
		responseOpcode = action.response
	case unsupportedActions[opcode]:
		responsePayload, _ = e.encodeStatusResponse(imsg.StatusUnsupportedAccess)
	default:
		responsePayload, _ = e.encodeStatusResponse(imsg.StatusInvalidAction)
	}

	if err != nil {
		return nil, err
	}
	if responsePayload == nil {
		// e.g. SuppressResponse was set on the request
		return nil, nil
	}

	// ctx is nil only in unit tests exercising the handler directly.
	if ctx == nil {
		return responsePayload, nil
	}
	if sendErr := ctx.SendMessage(uint8(responseOpcode), responsePayload, true); sendErr != nil {
		return nil, sendErr
	}
	return nil, nil
}

// OnClose implements exchange.ExchangeDelegate.
func (e *Engine) OnClose(ctx *exchange.ExchangeContext) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.readHandler.Reset()
	e.writeHandler.Reset()
	e.invokeHandler.Reset()
}

// requestIdentity returns the fabric index and source node ID the request
// should be attributed to.
//
// TODO: derive these from the exchange's SecureContext once the IM engine
// is wired to receive it; every call site currently attributes requests to
// fabric 1, node 0.
func requestIdentity() (fabricIndex uint8, sourceNodeID uint64) {
	return 1, 0
}

// handleReadRequest processes a ReadRequestMessage.
func (e *Engine) handleReadRequest(ctx *exchange.ExchangeContext, payload []byte) ([]byte, error) {
	req, err := DecodeReadRequest(payload)
	if err != nil {
		return e.encodeStatusResponse(imsg.StatusInvalidAction)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	handler := NewReadHandler(e.createAttributeReader(), e.maxPayload)
	fabricIndex, sourceNodeID := requestIdentity()

	resp, err := handler.HandleReadRequest(ctx, req, fabricIndex, sourceNodeID)
	if err != nil {
		return e.encodeStatusResponse(ErrorToStatus(err))
	}

	// Keep the handler around for a chunked continuation.
	e.readHandler = handler

	return EncodeReportData(resp)
}

// handleWriteRequest processes a WriteRequestMessage.
func (e *Engine) handleWriteRequest(ctx *exchange.ExchangeContext, payload []byte) ([]byte, error) {
	req, err := DecodeWriteRequest(payload)
	if err != nil {
		return e.encodeStatusResponse(imsg.StatusInvalidAction)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fabricIndex, sourceNodeID := requestIdentity()
	const isTimed = false // timed interactions unsupported in this engine

	resp, err := e.writeHandler.HandleWriteRequest(ctx, req, fabricIndex, sourceNodeID, isTimed)
	if err != nil {
		return e.encodeStatusResponse(ErrorToStatus(err))
	}
	if resp == nil {
		// SuppressResponse was set
		return nil, nil
	}

	return EncodeWriteResponse(resp)
}

// handleInvokeRequest processes an InvokeRequestMessage.
func (e *Engine) handleInvokeRequest(ctx *exchange.ExchangeContext, payload []byte) ([]byte, error) {
	req, err := DecodeInvokeRequest(payload)
	if err != nil {
		return e.encodeStatusResponse(imsg.StatusInvalidAction)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	handler := NewInvokeHandler(e.createCommandHandler(), e.maxPayload)
	fabricIndex, sourceNodeID := requestIdentity()
	const isTimed = false

	resp, err := handler.HandleInvokeRequest(ctx, req, fabricIndex, sourceNodeID, isTimed)
	if err != nil {
		return e.encodeStatusResponse(ErrorToStatus(err))
	}

	// Keep the handler around for a chunked continuation.
	e.invokeHandler = handler

	return EncodeInvokeResponse(resp)
}

// pendingChunk describes one kind of in-progress chunked exchange that a
// StatusResponse can advance: is it waiting, and if so how does its next
// chunk get produced and encoded.
type pendingChunk struct {
	opcode  imsg.Opcode
	waiting func(*Engine) bool
	advance func(*Engine, imsg.Status) (interface{}, error)
	encode  func(interface{}) ([]byte, error)
}

var pendingChunks = []pendingChunk{
	{
		opcode:  imsg.OpcodeReportData,
		waiting: func(e *Engine) bool { return e.readHandler.State() == ReadHandlerStateSendingReport },
		advance: func(e *Engine, status imsg.Status) (interface{}, error) { return e.readHandler.HandleStatusResponse(status) },
		encode: func(v interface{}) ([]byte, error) {
			msg, _ := v.(*imsg.ReportDataMessage)
			if msg == nil {
				return nil, nil
			}
			return EncodeReportData(msg)
		},
	},
	{
		opcode:  imsg.OpcodeInvokeResponse,
		waiting: func(e *Engine) bool { return e.invokeHandler.State() == InvokeHandlerStateSendingResponse },
		advance: func(e *Engine, status imsg.Status) (interface{}, error) { return e.invokeHandler.HandleStatusResponse(status) },
		encode: func(v interface{}) ([]byte, error) {
			msg, _ := v.(*imsg.InvokeResponseMessage)
			if msg == nil {
				return nil, nil
			}
			return EncodeInvokeResponse(msg)
		},
	},
}

// handleStatusResponse processes a StatusResponseMessage, used for chunked
// response flow control. It sends responses directly with the opcode
// matching whichever handler (read or invoke) was awaiting it.
func (e *Engine) handleStatusResponse(ctx *exchange.ExchangeContext, payload []byte) ([]byte, error) {
	statusMsg, err := DecodeStatusResponse(payload)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, pc := range pendingChunks {
		if !pc.waiting(e) {
			continue
		}

		result, err := pc.advance(e, statusMsg.Status)
		if err != nil {
			responsePayload, _ := e.encodeStatusResponse(ErrorToStatus(err))
			return e.sendOrReturn(ctx, uint8(imsg.OpcodeStatusResponse), responsePayload)
		}
		responsePayload, err := pc.encode(result)
		if err != nil {
			return nil, err
		}
		if responsePayload == nil {
			return nil, nil
		}
		return e.sendOrReturn(ctx, uint8(pc.opcode), responsePayload)
	}

	// No handler expecting a status response.
	return nil, nil
}

// sendOrReturn either sends via exchange context or returns payload for unit tests.
func (e *Engine) sendOrReturn(ctx *exchange.ExchangeContext, opcode uint8, payload []byte) ([]byte, error) {
	if ctx == nil {
		return payload, nil
	}
	if err := ctx.SendMessage(opcode, payload, true); err != nil {
		return nil, err
	}
	return nil, nil
}

// createAttributeReader creates an AttributeReader that uses the dispatcher.
func (e *Engine) createAttributeReader() AttributeReader {
	return func(ctx *ReadContext, path imsg.AttributePathIB) (*AttributeResult, error) {
		req := &AttributeReadRequest{
			Path:             path,
			IsFabricFiltered: ctx.IsFabricFiltered,
		}

		var buf bytes.Buffer
		w := tlv.NewWriter(&buf)

		if err := e.dispatcher.ReadAttribute(nil, req, w); err != nil {
			return &AttributeResult{Status: &imsg.StatusIB{Status: ErrorToStatus(err)}}, nil
		}

		return &AttributeResult{
			DataVersion: 1, // TODO: get from cluster
			Data:        buf.Bytes(),
		}, nil
	}
}

// createCommandHandler creates a CommandHandler that uses the dispatcher.
func (e *Engine) createCommandHandler() CommandHandler {
	return func(ctx *InvokeContext, path imsg.CommandPathIB, fields []byte) (*CommandResult, error) {
		req := &CommandInvokeRequest{
			Path:    path,
			IsTimed: ctx.IsTimed,
		}

		r := tlv.NewReader(bytes.NewReader(fields))

		respData, err := e.dispatcher.InvokeCommand(nil, req, r)
		if err != nil {
			return &CommandResult{Status: &imsg.StatusIB{Status: ErrorToStatus(err)}}, nil
		}

		return &CommandResult{ResponsePath: path, ResponseData: respData}, nil
	}
}

// encodeStatusResponse encodes a status response message.
func (e *Engine) encodeStatusResponse(status imsg.Status) ([]byte, error) {
	return EncodeStatusResponse(status)
}

// GetProtocolID returns the protocol ID for registration with ExchangeManager.
func (e *Engine) GetProtocolID() message.ProtocolID {
	return ProtocolID
}
