package ipc

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// File descriptors a worker finds its channel ends on. exec.Cmd.ExtraFiles
// entry i becomes descriptor 3+i in the child.
const (
	ChildRequestFD = 3
	ChildResultFD  = 4
)

// Channel is the parent side of a private duplex channel to one worker,
// built from two pipes: requests flow parent→child, results child→parent.
type Channel struct {
	reqR, reqW *os.File
	resR, resW *os.File

	closeOnce sync.Once
}

// OpenChannel creates both pipes.
func OpenChannel() (*Channel, error) {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating request pipe: %w", err)
	}
	resR, resW, err := os.Pipe()
	if err != nil {
		_ = reqR.Close()
		_ = reqW.Close()
		return nil, fmt.Errorf("creating result pipe: %w", err)
	}
	return &Channel{reqR: reqR, reqW: reqW, resR: resR, resW: resW}, nil
}

// ChildFiles returns the child's ends in ExtraFiles order so they land on
// ChildRequestFD and ChildResultFD.
func (c *Channel) ChildFiles() []*os.File {
	return []*os.File{c.reqR, c.resW}
}

// ReleaseChildEnds closes the parent's copies of the child's ends. It must be
// called once the child has started, otherwise the parent never sees EOF on
// the result pipe when the child exits.
func (c *Channel) ReleaseChildEnds() {
	if c.reqR != nil {
		_ = c.reqR.Close()
		c.reqR = nil
	}
	if c.resW != nil {
		_ = c.resW.Close()
		c.resW = nil
	}
}

// Send writes req as the single request frame and closes the request pipe.
func (c *Channel) Send(req *Request) error {
	if c.reqW == nil {
		return errors.New("request already sent")
	}
	err := WriteFrame(c.reqW, req)
	closeErr := c.reqW.Close()
	c.reqW = nil
	if err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("closing request pipe: %w", closeErr)
	}
	return nil
}

// Receive blocks until the worker has written its envelope and closed the
// result pipe.
func (c *Channel) Receive() (*ResultEnvelope, error) {
	var env ResultEnvelope
	if err := ReadOnlyFrame(c.resR, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Close closes every descriptor still open. Closing the read end of the
// result pipe unblocks a pending Receive.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		for _, f := range []*os.File{c.reqR, c.reqW, c.resR, c.resW} {
			if f != nil {
				_ = f.Close()
			}
		}
	})
}

// ChildChannel is the worker side of a Channel.
type ChildChannel struct {
	Request *os.File
	Result  *os.File
}

// OpenChildChannel wraps the inherited descriptors.
func OpenChildChannel() (*ChildChannel, error) {
	req := os.NewFile(uintptr(ChildRequestFD), "varbatch-request")
	res := os.NewFile(uintptr(ChildResultFD), "varbatch-result")
	if req == nil || res == nil {
		return nil, errors.New("worker channel descriptors are not available")
	}
	return &ChildChannel{Request: req, Result: res}, nil
}
