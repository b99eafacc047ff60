// Package driver bridges the rule engine and the MQTT device fabric.
//
// Outbound, MQTTDriver turns rule actions into command messages on
// hearth/command/{type}/{id}. Inbound, Listener merges confirmed state
// reports into the device registry and watches the command stream for
// manual control, which suppresses the rules targeting the device.
package driver
