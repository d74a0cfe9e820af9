package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/loxbc/pkg/bytecode"
	"github.com/chazu/loxbc/vm"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("vm worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) (bytecode.Value, error)
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value bytecode.Value
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// A vm.VM runs one chunk at a time; concurrent LSP handlers must go
// through the worker.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics.
func (w *VMWorker) execute(fn func(*vm.VM) (bytecode.Value, error)) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			result = vmResult{value: bytecode.Nil, err: fmt.Errorf("vm panic: %v", r)}
		}
	}()
	value, err := fn(w.vm)
	return vmResult{value: value, err: err}
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes. Panics inside fn are returned as errors.
func (w *VMWorker) Do(fn func(*vm.VM) (bytecode.Value, error)) (bytecode.Value, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case <-w.quit:
		return bytecode.Nil, ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return bytecode.Nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return bytecode.Nil, ErrWorkerStopped
	}
}

// Execute runs chunk on the worker's VM.
func (w *VMWorker) Execute(chunk *bytecode.Chunk) (bytecode.Value, error) {
	return w.Do(func(v *vm.VM) (bytecode.Value, error) {
		return v.Execute(chunk)
	})
}

// Stop shuts down the worker goroutine. Later calls are no-ops.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
