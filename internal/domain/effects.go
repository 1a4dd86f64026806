package domain

// EffectType is the wire tag of an Effect.
type EffectType string

const (
	EffectSendMessageDownstream EffectType = "send_message_downstream"
	EffectConnectUpstream       EffectType = "connect_upstream"
	EffectCleanup               EffectType = "cleanup"
	EffectSaveRecording         EffectType = "save_recording"
	EffectLoadRecording         EffectType = "load_recording"
	EffectSimulateClose         EffectType = "simulate_close"
	EffectSimulateError         EffectType = "simulate_error"
	EffectTerminate             EffectType = "terminate"
)

// Effect is an I/O request returned by the reducer. Effects describe work;
// the interpreter performs it.
type Effect interface {
	EffectType() EffectType
	isEffect()
}

// SendDownstream broadcasts one script message. Remaining is the script
// length after this message.
type SendDownstream struct {
	Message   Message
	Remaining int
}

type ConnectUpstream struct{}

type Cleanup struct{}

type SaveRecording struct {
	Messages []Message
	FilePath string
}

type LoadRecording struct {
	FilePath string
}

type InjectClose struct {
	CloseType CloseType
}

type InjectError struct {
	ErrorCode   string
	ShouldClose bool
}

type Shutdown struct{}

func (SendDownstream) EffectType() EffectType  { return EffectSendMessageDownstream }
func (ConnectUpstream) EffectType() EffectType { return EffectConnectUpstream }
func (Cleanup) EffectType() EffectType         { return EffectCleanup }
func (SaveRecording) EffectType() EffectType   { return EffectSaveRecording }
func (LoadRecording) EffectType() EffectType   { return EffectLoadRecording }
func (InjectClose) EffectType() EffectType     { return EffectSimulateClose }
func (InjectError) EffectType() EffectType     { return EffectSimulateError }
func (Shutdown) EffectType() EffectType        { return EffectTerminate }

func (SendDownstream) isEffect()  {}
func (ConnectUpstream) isEffect() {}
func (Cleanup) isEffect()         {}
func (SaveRecording) isEffect()   {}
func (LoadRecording) isEffect()   {}
func (InjectClose) isEffect()     {}
func (InjectError) isEffect()     {}
func (Shutdown) isEffect()        {}
