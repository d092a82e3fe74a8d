package process

import "github.com/serena-os/kernel/internal/kernel/sched"

// ExceptionCode is a platform-independent CPU exception classification.
type ExceptionCode int

const (
	ExcptDivZero ExceptionCode = iota
	ExcptIllegal
	ExcptTrap
	ExcptFPE
	ExcptBus
	ExcptSegv
)

// HandlerResult is what a user-mode exception handler returns to tell
// the kernel whether to resume or abandon the faulting context.
type HandlerResult int

const (
	ContinueExecution HandlerResult = iota
	AbortExecution
)

// MContext is the saved machine context handed to a user-mode exception
// handler: just enough state to resume (or discard) the faulting
// execution point. There is no real register file in a hosted port, so
// this is a small opaque snapshot rather than a full trap frame.
type MContext struct {
	PC uint64
	SP uint64
}

// ExceptionInfo describes the fault passed alongside MContext.
type ExceptionInfo struct {
	Code    ExceptionCode
	Address uint64
}

// ExceptionHandler is a registered user-mode handler for one exception
// code.
type ExceptionHandler struct {
	Code    ExceptionCode
	Handler func(MContext, ExceptionInfo) HandlerResult

	inHandler bool
}

// SetExceptionHandler installs fn for code, replacing any previous
// handler.
func (p *Process) SetExceptionHandler(code ExceptionCode, fn func(MContext, ExceptionInfo) HandlerResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exceptionHandlers[code] = &ExceptionHandler{Code: code, Handler: fn}
}

// DiscardExceptionHandlers clears every registered handler, called by
// exec so the new image starts with no inherited exception state.
func (p *Process) DiscardExceptionHandlers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exceptionHandlers = make(map[ExceptionCode]*ExceptionHandler)
}

// RaiseException delivers a fault for code at mctx/info on the faulting
// vCPU v (nil if none is attributable). If no handler is registered, or
// the faulting vCPU is already inside a handler for this code (a double
// fault), the process exits with ExitException. Otherwise the handler
// runs and its result determines whether mctx is resumed or abandoned.
func (p *Process) RaiseException(v *sched.VCPU, code ExceptionCode, mctx MContext, info ExceptionInfo) HandlerResult {
	p.mu.Lock()
	h, ok := p.exceptionHandlers[code]
	if !ok || h.inHandler {
		p.mu.Unlock()
		p.doExit(v, ExitException, int32(code))
		return AbortExecution
	}
	h.inHandler = true
	p.mu.Unlock()

	result := h.Handler(mctx, info)

	p.mu.Lock()
	h.inHandler = false
	p.mu.Unlock()
	return result
}
