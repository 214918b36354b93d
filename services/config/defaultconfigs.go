package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device name (the --device flag)
// Val: raw YAML for that device
// -----------------------------------------------------------------------------

const cfgPi4 = `
device: pi4
chip:
  path: /dev/gpiochip0
  consumer: sensornode
pipeline:
  wait_slice: 1s
heartbeat:
  interval: 2s
pins:
  - name: button
    line: 5
    mode: interrupt
    edge: rising
    bias: [pull-down]
  - name: door
    line: 27
    mode: interrupt
    edge: falling
    bias: [pull-up]
  - name: status-led
    line: 17
    mode: output
`

const cfgSim = `
device: sim
chip:
  sim: true
  sim_lines: 32
heartbeat:
  interval: 1s
metrics:
  addr: ""
pins:
  - name: button
    line: 5
    mode: interrupt
    edge: rising
  - name: door
    line: 27
    mode: interrupt
    edge: falling
  - name: status-led
    line: 17
    mode: output
`

var embeddedConfigs = map[string][]byte{
	"pi4": []byte(cfgPi4),
	"sim": []byte(cfgSim),
}
