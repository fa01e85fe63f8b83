package wire

import "context"

// SendFunc marshals and sends one outbound frame through the transport's
// serialized send path (spec §4.1, §5: "every producer acquires the send
// lock around each whole frame"). Components that emit frames outside the
// direct request/response path (download jobs, the interactive reader,
// streamed command output, the telemetry pump) are handed a SendFunc
// rather than a transport handle, so they cannot bypass serialization or
// reach into session/transport internals.
type SendFunc func(ctx context.Context, payload any) error
