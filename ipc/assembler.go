package ipc

// MessageKind distinguishes decrypted responses from plaintext requests.
type MessageKind int

const (
	// MessageResponse is a decrypted response body.
	MessageResponse MessageKind = iota
	// MessageRequest is a plaintext request body.
	MessageRequest
)

func (k MessageKind) String() string {
	if k == MessageRequest {
		return "request"
	}
	return "response"
}

// Message is a complete body ready for structured decoding. Both kinds still
// carry their 4-byte header.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Assembler holds the streaming state of one run. It is not safe for
// concurrent use; the run loop is its only caller.
type Assembler struct {
	parts  Accumulator
	cipher CipherContext
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Handle applies one frame. It returns a Message when the frame completes
// one, (nil, nil) when more frames are needed, and a *FrameError for frames
// that must be dropped.
func (a *Assembler) Handle(f Frame) (*Message, error) {
	switch f.Type {
	case FrameData:
		a.cipher.SetData(f.Payload)
	case FrameKey:
		a.cipher.SetKey(f.Payload)
	case FrameIV:
		a.cipher.SetIV(f.Payload)
		if !a.cipher.Ready() {
			return nil, nil
		}
		plain, err := a.cipher.Open()
		a.parts.Reset()
		if err != nil {
			return nil, err
		}
		return &Message{Kind: MessageResponse, Payload: plain}, nil
	case FrameRequest:
		return &Message{Kind: MessageRequest, Payload: f.Payload}, nil
	case FrameMultipartHeader:
		a.parts.Begin(f.Chunks)
		a.cipher.SetData(nil)
	case FrameMultipartChunk:
		if err := a.parts.Append(f.Payload); err != nil {
			return nil, err
		}
		a.cipher.SetData(a.parts.Bytes())
	default:
		return nil, &FrameError{Kind: FrameErrorUnknownType, Msg: "unknown frame type " + f.Type.String()}
	}
	return nil, nil
}

// Pending reports whether a partial triple or reassembly is in progress.
func (a *Assembler) Pending() bool {
	return len(a.cipher.key) > 0 || len(a.cipher.iv) > 0 || len(a.cipher.data) > 0 || a.parts.Remaining() > 0
}

// Reset discards all partial state.
func (a *Assembler) Reset() {
	a.parts.Reset()
	a.cipher.Reset()
}
