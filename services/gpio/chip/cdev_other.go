//go:build !linux

package chip

import "sensornode-go/errcode"

// Open is only available on Linux; use NewSim elsewhere.
func Open(path, _ string) (Chip, error) {
	return nil, &errcode.E{C: errcode.UnknownChip, Op: "open " + path, Msg: "gpio character devices require linux"}
}
