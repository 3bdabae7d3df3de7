package config

import (
	"fmt"

	"github.com/arloliu/go-acq/shot"
	"gopkg.in/yaml.v3"
)

// Channels is the YAML form of a shot.ChannelMap:
//
//	channels: all            # every channel
//	channels: 3              # channel 3 of every unit
//	channels: [1, 2]         # channels 1 and 2 of every unit
//	channels: [[1], [2, 3]]  # per unit, in file order
type Channels struct {
	shot.ChannelMap

	// units is the number of per-unit entries, 0 for the other forms.
	units int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Channels) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "all" || node.Value == "" {
			*c = Channels{ChannelMap: shot.AllChannels()}
			return nil
		}

		var ch int
		if err := node.Decode(&ch); err != nil {
			return fmt.Errorf("line %d: channels: want \"all\", a channel or a list: %w", node.Line, err)
		}
		*c = Channels{ChannelMap: shot.SingleChannel(ch)}

		return nil

	case yaml.SequenceNode:
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var perUnit [][]int
			if err := node.Decode(&perUnit); err != nil {
				return fmt.Errorf("line %d: channels: %w", node.Line, err)
			}
			*c = Channels{ChannelMap: shot.PerUnitChannels(perUnit...), units: len(perUnit)}

			return nil
		}

		var same []int
		if err := node.Decode(&same); err != nil {
			return fmt.Errorf("line %d: channels: %w", node.Line, err)
		}
		if len(same) == 0 {
			*c = Channels{ChannelMap: shot.AllChannels()}
			return nil
		}
		*c = Channels{ChannelMap: shot.SameChannels(same...)}

		return nil

	default:
		return fmt.Errorf("line %d: channels: unsupported YAML node", node.Line)
	}
}
