package appliance

import (
	"context"
	"errors"
	"sync"
)

// FakeChannel is an in-memory Channel for tests. Responses are looked up by
// exact command text; an entry in Errors takes precedence over Responses.
type FakeChannel struct {
	Responses map[string]string
	Errors    map[string]error

	mu     sync.Mutex
	sent   []string
	closes int
}

// NewFakeChannel returns a FakeChannel answering with the given responses.
// Unknown commands get an empty response.
func NewFakeChannel(responses map[string]string) *FakeChannel {
	if responses == nil {
		responses = map[string]string{}
	}
	return &FakeChannel{Responses: responses, Errors: map[string]error{}}
}

// Send records the command and returns the scripted response.
func (f *FakeChannel) Send(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return "", errors.New("fake channel closed")
	}
	f.sent = append(f.sent, command)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.Errors[command]; ok {
		return "", err
	}
	return f.Responses[command], nil
}

// Close counts the call.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// Sent returns the commands sent so far, in order.
func (f *FakeChannel) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// CloseCount returns how many times Close was called.
func (f *FakeChannel) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// FakeDialer returns a Dialer that hands out ch, or fails with err when err is
// non-nil. The number of Dial calls is written to *calls if calls is non-nil.
func FakeDialer(ch Channel, err error, calls *int) Dialer {
	var mu sync.Mutex
	return DialerFunc(func(ctx context.Context, cfg Config) (Channel, error) {
		mu.Lock()
		if calls != nil {
			*calls++
		}
		mu.Unlock()
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
}
