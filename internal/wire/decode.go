package wire

import (
	"encoding/json"
	"fmt"
)

// DecodeCommand decodes one inbound text frame into a CommandFrame. The
// wire format (spec §6.1) has exactly one inbound shape — {"command":...,
// "command_id":...} — so, unlike a multi-shape envelope, no discriminator
// lookup is needed before unmarshaling.
func DecodeCommand(frame []byte) (CommandFrame, error) {
	var cmd CommandFrame
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return CommandFrame{}, fmt.Errorf("decode command frame: %w", err)
	}
	if cmd.Command == "" {
		return CommandFrame{}, fmt.Errorf("command frame missing %q key", "command")
	}
	return cmd, nil
}
