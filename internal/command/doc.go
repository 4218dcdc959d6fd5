// Package command relays viewer commands to devices.
//
// Relay.Send validates the target against the device registry and forwards
// the opaque command document to an Actuator. The relay does not interpret
// the command and does not retry; a failed actuation is reported to the
// caller as ErrActuationFailed.
//
// Two actuators ship with Flora Core: LogActuator, which only records the
// command (the minimal deployment), and MQTTActuator, which publishes it to
// flora/command/{device_id}.
package command
