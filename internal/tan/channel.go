// Package tan invokes the external TAN-delivery subprocess: the script is
// run with exec.CommandContext and waited for in the caller's goroutine,
// inherits the parent environment plus a per-channel map, and receives the
// message text on stdin.
package tan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/libeufin-go/corebank/internal/domain"
)

// ErrScriptFailed maps to HTTP 502 BANK_TAN_CHANNEL_SCRIPT_FAILED.
var ErrScriptFailed = fmt.Errorf("tan: channel script exited non-zero")

// Sender delivers a TAN code to an account holder out-of-band.
type Sender interface {
	Send(ctx context.Context, channel domain.TanChannel, recipientInfo, messageText string) error
}

// ScriptSender shells out to a per-channel script, keyed by domain.TanChannel so each channel can run its own delivery
// command.
type ScriptSender struct {
	ScriptPath map[domain.TanChannel]string
	ExtraEnv   map[domain.TanChannel]map[string]string
}

func (s *ScriptSender) Send(ctx context.Context, channel domain.TanChannel, recipientInfo, messageText string) error {
	path, ok := s.ScriptPath[channel]
	if !ok || path == "" {
		return fmt.Errorf("tan: no script configured for channel %q", channel)
	}

	cmd := exec.CommandContext(ctx, path, recipientInfo)
	cmd.Env = os.Environ()
	for k, v := range s.ExtraEnv[channel] {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = bytes.NewBufferString(messageText)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v (%s)", ErrScriptFailed, err, stderr.String())
	}
	return nil
}

// NoopSender is used in tests and when no TAN script is configured at all;
// it records sends without shelling out.
type NoopSender struct {
	Sent []NoopSend
}

type NoopSend struct {
	Channel       domain.TanChannel
	RecipientInfo string
	MessageText   string
}

func (n *NoopSender) Send(_ context.Context, channel domain.TanChannel, recipientInfo, messageText string) error {
	n.Sent = append(n.Sent, NoopSend{Channel: channel, RecipientInfo: recipientInfo, MessageText: messageText})
	return nil
}
