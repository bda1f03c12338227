package wasm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tidwall/sjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// Host function status codes returned to the guest.
const (
	statusOK       uint32 = 0
	statusBadArgs  uint32 = 1
	statusRejected uint32 = 2
)

// callbackTimeout bounds how long a guest callback waits for its
// response before being delivered as an error.
const callbackTimeout = 30 * time.Second

// instantiateHostModule registers the "host" import module. Every
// function is fire-and-forget from the guest's perspective: the guest
// passes a request id and the name of an exported callback function,
// and the result arrives later as a callback invocation with a JSON
// payload {request_id, result} or {request_id, error}.
func (a *Adapter) instantiateHostModule(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder("host").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			return a.hostRequest(m, bridge.KindClipboardRead, []byte(`{}`), idPtr, idLen, cbPtr, cbLen)
		}).
		Export("clipboard_read_async").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, textPtr, textLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			text, ok := readGuestString(m.Memory(), textPtr, textLen)
			if !ok {
				return statusBadArgs
			}
			payload, err := sjson.Set("{}", "text", text)
			if err != nil {
				return statusBadArgs
			}
			return a.hostRequest(m, bridge.KindClipboardWrite, []byte(payload), idPtr, idLen, cbPtr, cbLen)
		}).
		Export("clipboard_write_async").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			return a.hostJSONRequest(m, bridge.KindNotification, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen)
		}).
		Export("notification_send_async").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, keyPtr, keyLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			key, ok := readGuestString(m.Memory(), keyPtr, keyLen)
			if !ok {
				return statusBadArgs
			}
			payload, err := sjson.Set("{}", "key", key)
			if err != nil {
				return statusBadArgs
			}
			return a.hostRequest(m, bridge.KindStorageRead, []byte(payload), idPtr, idLen, cbPtr, cbLen)
		}).
		Export("storage_read_async").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			return a.hostJSONRequest(m, bridge.KindStorageWrite, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen)
		}).
		Export("storage_write_async").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
			return a.hostJSONRequest(m, bridge.KindHTTP, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen)
		}).
		Export("http_request_async").
		Instantiate(ctx)
	return err
}

// hostJSONRequest reads a guest JSON payload and submits it unchanged.
func (a *Adapter) hostJSONRequest(m api.Module, kind bridge.Kind, payloadPtr, payloadLen, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
	payload, ok := readGuestBytes(m.Memory(), payloadPtr, payloadLen)
	if !ok {
		return statusBadArgs
	}
	return a.hostRequest(m, kind, payload, idPtr, idLen, cbPtr, cbLen)
}

// hostRequest validates the request id and callback name, submits the
// bridge request, and arranges the guest callback once the response
// arrives. The submit itself is synchronous and cheap; the operation
// runs on the bridge's workers.
func (a *Adapter) hostRequest(m api.Module, kind bridge.Kind, payload []byte, idPtr, idLen, cbPtr, cbLen uint32) uint32 {
	requestID, ok := readGuestString(m.Memory(), idPtr, idLen)
	if !ok || requestID == "" {
		return statusBadArgs
	}
	cbName, ok := readGuestString(m.Memory(), cbPtr, cbLen)
	if !ok || cbName == "" {
		return statusBadArgs
	}

	pending, err := a.bus.Submit(context.Background(), bridge.ServiceRequest{
		Kind:     kind,
		PluginID: a.pluginID,
		Payload:  payload,
	})
	if err != nil {
		a.logger.Warn("sandbox request rejected",
			"plugin", a.pluginID, "kind", kind.String(), "error", err)
		return statusRejected
	}

	go a.awaitAndCallBack(pending, requestID, cbName)
	return statusOK
}

// awaitAndCallBack waits for the response and invokes the guest's named
// callback with the completion payload.
func (a *Adapter) awaitAndCallBack(pending *bridge.Pending, requestID, cbName string) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	resp, err := pending.Await(ctx)
	if err != nil {
		resp = bridge.ServiceResponse{Success: false, Err: "response timed out"}
	}

	out := "{}"
	out, _ = sjson.Set(out, "request_id", requestID)
	if resp.Success {
		raw := string(resp.Payload)
		if raw == "" {
			raw = "null"
		}
		out, _ = sjson.SetRaw(out, "result", raw)
	} else {
		out, _ = sjson.Set(out, "error", resp.Err)
	}

	a.invokeGuestCallback(cbName, json.RawMessage(out))
}

// invokeGuestCallback calls an exported guest function with a JSON
// payload. Callbacks racing an unload are dropped; the guest is gone.
func (a *Adapter) invokeGuestCallback(cbName string, payload json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mod == nil || a.lc.State() == runtime.StateUnloaded {
		a.logger.Debug("dropping callback for unloaded plugin", "plugin", a.pluginID, "callback", cbName)
		return
	}

	cb := a.mod.ExportedFunction(cbName)
	if cb == nil {
		a.logger.Warn("guest callback not exported", "plugin", a.pluginID, "callback", cbName)
		return
	}

	ctx := context.Background()
	ptr, err := a.writeGuest(ctx, payload)
	if err != nil {
		a.logger.Warn("failed to deliver callback payload", "plugin", a.pluginID, "error", err)
		return
	}
	if _, err := cb.Call(ctx, uint64(ptr), uint64(len(payload))); err != nil {
		a.logger.Warn("guest callback trapped", "plugin", a.pluginID, "callback", cbName, "error", err)
	}
}

// readGuestBytes copies a guest buffer after validating the pointer and
// length against the module's linear memory bounds and the payload
// ceiling. Never dereferences unvalidated guest pointers.
func readGuestBytes(mem api.Memory, ptr, length uint32) ([]byte, bool) {
	if length > maxGuestPayload {
		return nil, false
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// readGuestString copies a guest string with the same validation.
func readGuestString(mem api.Memory, ptr, length uint32) (string, bool) {
	data, ok := readGuestBytes(mem, ptr, length)
	if !ok {
		return "", false
	}
	return string(data), true
}
