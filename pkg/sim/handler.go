package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/version"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// Handler turns wire requests into instrument operations. One handler
// serves any number of connections; the instrument does its own
// locking.
type Handler struct {
	inst   *Instrument
	logger log.Logger
}

// NewHandler returns a handler for the instrument. A nil logger
// disables logging.
func NewHandler(inst *Instrument, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Handler{inst: inst, logger: logger}
}

// Handle decodes one request frame and returns the encoded response.
// A nil response with an error means the frame was not decodable and
// nothing can be sent back.
func (h *Handler) Handle(ctx context.Context, connID string, data []byte) ([]byte, error) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	start := time.Now()
	h.logRequest(connID, req)

	resp := &wire.Response{MessageID: req.MessageID}
	if err := req.Validate(); err != nil {
		h.fail(resp, wire.StatusBadRequest, err, req.Path)
	} else {
		h.dispatch(ctx, req, resp)
	}

	h.logResponse(connID, req, resp, time.Since(start))
	return wire.EncodeResponse(resp)
}

func (h *Handler) dispatch(ctx context.Context, req *wire.Request, resp *wire.Response) {
	switch req.Operation {
	case wire.OpGet:
		value, err := h.inst.Get(ctx, req.Path)
		if err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, &wire.GetResult{Value: value})

	case wire.OpGetDeep:
		value, ts, err := h.inst.GetDeep(ctx, req.Path)
		if err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, &wire.GetResult{Value: value, Timestamp: ts})

	case wire.OpSet:
		var sr wire.SetRequest
		if err := wire.Unmarshal(req.Payload, &sr); err != nil {
			h.fail(resp, wire.StatusBadRequest, err, req.Path)
			return
		}
		if err := h.inst.Set(ctx, req.Path, sr.Value); err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, nil)

	case wire.OpSetDeep:
		var sr wire.SetRequest
		if err := wire.Unmarshal(req.Payload, &sr); err != nil {
			h.fail(resp, wire.StatusBadRequest, err, req.Path)
			return
		}
		ack, err := h.inst.SetDeep(ctx, req.Path, sr.Value)
		if err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, &wire.SetResult{Value: ack})

	case wire.OpSetBatch:
		var br wire.SetBatchRequest
		if err := wire.Unmarshal(req.Payload, &br); err != nil {
			h.fail(resp, wire.StatusBadRequest, err, "")
			return
		}
		if err := h.inst.SetBatch(ctx, br.Writes); err != nil {
			h.failOp(resp, err, "")
			return
		}
		h.succeed(resp, nil)

	case wire.OpListNodes:
		var lr wire.ListNodesRequest
		if len(req.Payload) > 0 {
			if err := wire.Unmarshal(req.Payload, &lr); err != nil {
				h.fail(resp, wire.StatusBadRequest, err, req.Path)
				return
			}
		}
		paths, err := h.inst.ListNodes(ctx, req.Path, lr.Flags)
		if err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, &wire.ListNodesResult{Paths: paths})

	case wire.OpNodeInfo:
		info, err := h.inst.NodeInfo(ctx, req.Path)
		if err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, &wire.NodeInfoResult{
			Description: info.Description,
			Readable:    info.Readable,
			Writable:    info.Writable,
			Setting:     info.Setting,
			Vector:      info.Vector,
			Unit:        info.Unit,
			Type:        uint8(info.Type),
			Options:     info.Options,
			Streaming:   info.Streaming,
		})

	case wire.OpSubscribe:
		if err := h.inst.Subscribe(ctx, req.Path); err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, nil)

	case wire.OpUnsubscribe:
		if err := h.inst.Unsubscribe(ctx, req.Path); err != nil {
			h.failOp(resp, err, req.Path)
			return
		}
		h.succeed(resp, nil)

	case wire.OpPoll:
		var pr wire.PollRequest
		if len(req.Payload) > 0 {
			if err := wire.Unmarshal(req.Payload, &pr); err != nil {
				h.fail(resp, wire.StatusBadRequest, err, "")
				return
			}
		}
		recording := time.Duration(pr.RecordingTimeMS) * time.Millisecond
		limit := time.Duration(pr.TimeoutMS) * time.Millisecond
		updates, err := h.inst.Poll(ctx, recording, limit, pr.Flags)
		if err != nil {
			h.failOp(resp, err, "")
			return
		}
		h.succeed(resp, &wire.PollResult{Updates: updates})

	case wire.OpHello:
		var hr wire.HelloRequest
		if len(req.Payload) > 0 {
			if err := wire.Unmarshal(req.Payload, &hr); err != nil {
				h.fail(resp, wire.StatusBadRequest, err, "")
				return
			}
		}
		// Version compatibility is the client's call: it gets our
		// version and decides whether to proceed.
		h.succeed(resp, &wire.HelloResult{
			ProtocolVersion: version.Current,
			DeviceID:        h.inst.DeviceID(),
			ClockRate:       h.inst.ClockRate(),
		})

	default:
		h.fail(resp, wire.StatusUnsupported,
			fmt.Errorf("unsupported operation %d", req.Operation), req.Path)
	}
}

func (h *Handler) succeed(resp *wire.Response, payload any) {
	resp.Status = wire.StatusSuccess
	if payload == nil {
		return
	}
	raw, err := wire.MarshalPayload(payload)
	if err != nil {
		h.fail(resp, wire.StatusInternal, fmt.Errorf("encoding result: %w", err), "")
		return
	}
	resp.Payload = raw
}

func (h *Handler) failOp(resp *wire.Response, err error, path string) {
	h.fail(resp, statusFor(err), err, path)
}

func (h *Handler) fail(resp *wire.Response, status wire.Status, err error, path string) {
	resp.Status = status
	resp.Payload = nil
	if raw, mErr := wire.MarshalPayload(&wire.ErrorPayload{Message: err.Error(), Path: path}); mErr == nil {
		resp.Payload = raw
	}
}

// statusFor maps instrument errors to wire status codes.
func statusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, schema.ErrNodeNotFound):
		return wire.StatusNotFound
	case errors.Is(err, node.ErrNotReadable):
		return wire.StatusNotReadable
	case errors.Is(err, node.ErrNotWritable):
		return wire.StatusNotWritable
	case errors.Is(err, schema.ErrValueType):
		return wire.StatusInvalidValue
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return wire.StatusTimeout
	default:
		return wire.StatusInternal
	}
}

func (h *Handler) logRequest(connID string, req *wire.Request) {
	op := req.Operation
	h.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleDevice,
		DeviceID:     h.inst.DeviceID(),
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Operation: &op,
			Path:      req.Path,
		},
	})
}

func (h *Handler) logResponse(connID string, req *wire.Request, resp *wire.Response, elapsed time.Duration) {
	status := resp.Status
	h.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleDevice,
		DeviceID:     h.inst.DeviceID(),
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Path:           req.Path,
			Status:         &status,
			ProcessingTime: &elapsed,
		},
	})
}
