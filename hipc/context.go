package hipc

import (
	"encoding/binary"
	"errors"

	"github.com/XorTroll/pegasus/domain"
)

// CMIF magic words (spec §4.8, GLOSSARY "CMIF"): libnx's well-known
// nn::sf in/out header tags.
const (
	CmifInMagic  = 0x49434653 // "SFCI"
	CmifOutMagic = 0x4F434653 // "SFCO"
)

// BufferDescriptor records a send/receive/exchange buffer attached to a
// request. Data is the source side's payload; Dest, when non-nil, is the
// destination side's already-registered buffer region — this emulator
// models a guest's IPC pointer/map buffers as Go byte slices rather than
// addresses into a byte-addressable guest memory space, so "mapping a
// buffer" is supplying the slice it should land in. Translate performs
// the bounded copy between the two (spec §4.8 step 3).
type BufferDescriptor struct {
	Data []byte
	Dest []byte
}

// translateBuffers copies each populated descriptor's Data into its Dest,
// bounded to min(len(Data), len(Dest)) — a real transfer never writes
// past either side's declared buffer size. A non-empty Data with no Dest
// means the receiving side never registered a buffer for this parameter
// at all, which fails the whole request with domain.ResultInvalidState
// rather than silently dropping the payload (spec §4.8 step 3, the
// buffer-translation behavior the original left as a todo!).
func translateBuffers(descs []BufferDescriptor) domain.Result {
	for i := range descs {
		d := &descs[i]
		if d.Dest == nil {
			if len(d.Data) == 0 {
				continue
			}
			return domain.ResultInvalidState
		}
		n := len(d.Data)
		if len(d.Dest) < n {
			n = len(d.Dest)
		}
		copy(d.Dest[:n], d.Data[:n])
	}
	return domain.Success
}

// Translate maps this request's send and exchange buffers into their
// registered destinations, to be called after DecodeRequest and before
// the handler dispatches.
func (ctx *CommandContext) Translate() domain.Result {
	if res := translateBuffers(ctx.SendBuffers); !res.IsSuccess() {
		return res
	}
	return translateBuffers(ctx.ExchangeBuffers)
}

// TranslateReply maps this response's receive and exchange buffers into
// their registered destinations — the Dest side of a ReceiveBuffer is
// declared by the client when it builds the request, so the server
// copies the caller-supplied req's descriptors across by index before
// translating the handler's output.
func (ctx *CommandContext) TranslateReply(req *CommandContext) domain.Result {
	for i := range ctx.ReceiveBuffers {
		if i < len(req.ReceiveBuffers) {
			ctx.ReceiveBuffers[i].Dest = req.ReceiveBuffers[i].Dest
		}
	}
	for i := range ctx.ExchangeBuffers {
		if i < len(req.ExchangeBuffers) {
			ctx.ExchangeBuffers[i].Dest = req.ExchangeBuffers[i].Dest
		}
	}
	if res := translateBuffers(ctx.ReceiveBuffers); !res.IsSuccess() {
		return res
	}
	return translateBuffers(ctx.ExchangeBuffers)
}

// SendStaticDescriptor is one "pointer buffer" parameter, addressed by
// its declared index in the callee's signature.
type SendStaticDescriptor struct {
	Index int
	Data  []byte
}

// CommandContext is the encode/decode accumulator for one HIPC message,
// client or server side (spec §4.8 "Client encode" / "Server receive").
type CommandContext struct {
	Header  CommandHeader
	Special SpecialHeader

	ProcessID uint64

	CopyHandles []domain.Handle
	MoveHandles []domain.Handle

	SendStatics     []SendStaticDescriptor
	SendBuffers     []BufferDescriptor
	ReceiveBuffers  []BufferDescriptor
	ExchangeBuffers []BufferDescriptor

	RawData []uint32

	// CommandID is the 12-bit (in practice unbounded in our model)
	// command id: for CMIF it lives in the CmifInHeader/CmifOutHeader
	// inside RawData; for TIPC it's folded into Header.Type. Dispatch
	// always reads it from here regardless of dialect.
	CommandID uint32
	// Result carries the reply's result code for a decoded response.
	Result domain.Result

	// Domain is the domain command type and DomainObjectID the sub-object
	// id this request targets on a session already converted to a domain
	// (spec §4.8 "Domains").
	Domain         DomainCommandType
	DomainObjectID uint32

	// IsControl marks this as an IHipcManager control request rather
	// than a normal interface request.
	IsControl bool
}

// EncodeRequest renders ctx as a CMIF or TIPC request frame, per
// tipc (if true selects the TIPC dialect).
func (ctx *CommandContext) EncodeRequest(tipc bool) ([]byte, error) {
	buf := make([]byte, 0x100)
	ctx.Header.NumCopyHandles = len(ctx.CopyHandles)
	ctx.Header.NumMoveHandles = len(ctx.MoveHandles)
	ctx.Header.NumSendStatics = len(ctx.SendStatics)
	ctx.Header.NumSendBuffers = len(ctx.SendBuffers)
	ctx.Header.NumReceiveBuffers = len(ctx.ReceiveBuffers)
	ctx.Header.NumExchangeBuffers = len(ctx.ExchangeBuffers)
	ctx.Header.HasSpecialHeader = ctx.Special.SendProcessID

	if tipc {
		ctx.Header.Type = EncodeTipcRequest(ctx.CommandID)
	} else if ctx.IsControl {
		ctx.Header.Type = TypeControl
	} else {
		ctx.Header.Type = TypeRequest
	}

	raw := append([]uint32(nil), ctx.RawData...)
	if !tipc {
		cmif := make([]uint32, 3+len(raw))
		cmif[0] = CmifInMagic
		cmif[1] = 0 // version
		cmif[2] = ctx.CommandID
		copy(cmif[3:], raw)
		raw = cmif
	}
	ctx.Header.DataWords = len(raw)

	off := EncodeHeader(buf, ctx.Header)
	if ctx.Special.SendProcessID {
		binary.LittleEndian.PutUint64(buf[off:off+8], ctx.ProcessID)
		off += 8
	}
	for _, h := range ctx.CopyHandles {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h))
		off += 4
	}
	for _, h := range ctx.MoveHandles {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h))
		off += 4
	}
	for _, w := range raw {
		if off+4 > len(buf) {
			return nil, errors.New("hipc: request does not fit in IPC buffer")
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	return buf[:off], nil
}

// DecodeRequest parses a request frame previously built by EncodeRequest
// (or an equivalent guest encoder).
func DecodeRequest(buf []byte) (*CommandContext, error) {
	if len(buf) < 8 {
		return nil, errors.New("hipc: buffer too short for a header")
	}
	h, off := DecodeHeader(buf)
	ctx := &CommandContext{Header: h}

	if h.HasSpecialHeader {
		if off+8 > len(buf) {
			return nil, errors.New("hipc: truncated special header")
		}
		ctx.Special.SendProcessID = true
		ctx.ProcessID = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}

	for i := 0; i < h.NumCopyHandles; i++ {
		ctx.CopyHandles = append(ctx.CopyHandles, domain.Handle(binary.LittleEndian.Uint32(buf[off:off+4])))
		off += 4
	}
	for i := 0; i < h.NumMoveHandles; i++ {
		ctx.MoveHandles = append(ctx.MoveHandles, domain.Handle(binary.LittleEndian.Uint32(buf[off:off+4])))
		off += 4
	}

	raw := make([]uint32, h.DataWords)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	if h.Type.IsTipc() {
		ctx.CommandID = h.Type.TipcCommandID()
		ctx.RawData = raw
	} else if len(raw) >= 3 && raw[0] == CmifInMagic {
		ctx.CommandID = raw[2]
		ctx.RawData = raw[3:]
	} else {
		ctx.RawData = raw
	}
	return ctx, nil
}

// EncodeResponse renders ctx as a reply frame carrying result, either
// CMIF- or TIPC-framed to match the request it answers.
func (ctx *CommandContext) EncodeResponse(tipc bool, result domain.Result) ([]byte, error) {
	buf := make([]byte, 0x100)
	ctx.Header.NumCopyHandles = len(ctx.CopyHandles)
	ctx.Header.NumMoveHandles = len(ctx.MoveHandles)
	ctx.Header.HasSpecialHeader = false

	if tipc {
		ctx.Header.Type = ctx.Header.Type // echo request type
	} else {
		ctx.Header.Type = TypeRequest
	}

	raw := append([]uint32(nil), ctx.RawData...)
	if tipc {
		// TIPC responses put the result code as the first raw word.
		withResult := make([]uint32, 1+len(raw))
		withResult[0] = uint32(result)
		copy(withResult[1:], raw)
		raw = withResult
	} else {
		cmif := make([]uint32, 4+len(raw))
		cmif[0] = CmifOutMagic
		cmif[1] = uint32(result)
		cmif[2] = 0
		cmif[3] = 0
		copy(cmif[4:], raw)
		raw = cmif
	}
	ctx.Header.DataWords = len(raw)

	off := EncodeHeader(buf, ctx.Header)
	for _, h := range ctx.CopyHandles {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h))
		off += 4
	}
	for _, h := range ctx.MoveHandles {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h))
		off += 4
	}
	for _, w := range raw {
		if off+4 > len(buf) {
			return nil, errors.New("hipc: response does not fit in IPC buffer")
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	return buf[:off], nil
}

// DecodeResponse parses a reply frame, extracting its result code and
// any returned handles/raw data.
func DecodeResponse(buf []byte, tipc bool) (*CommandContext, error) {
	if len(buf) < 8 {
		return nil, errors.New("hipc: buffer too short for a header")
	}
	h, off := DecodeHeader(buf)
	ctx := &CommandContext{Header: h}

	for i := 0; i < h.NumCopyHandles; i++ {
		ctx.CopyHandles = append(ctx.CopyHandles, domain.Handle(binary.LittleEndian.Uint32(buf[off:off+4])))
		off += 4
	}
	for i := 0; i < h.NumMoveHandles; i++ {
		ctx.MoveHandles = append(ctx.MoveHandles, domain.Handle(binary.LittleEndian.Uint32(buf[off:off+4])))
		off += 4
	}

	raw := make([]uint32, h.DataWords)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	if tipc {
		if len(raw) < 1 {
			return nil, errors.New("hipc: tipc response missing result word")
		}
		ctx.Result = domain.Result(raw[0])
		ctx.RawData = raw[1:]
	} else if len(raw) >= 4 && raw[0] == CmifOutMagic {
		ctx.Result = domain.Result(raw[1])
		ctx.RawData = raw[4:]
	} else {
		ctx.RawData = raw
	}
	return ctx, nil
}
