// Package mqtt provides the MQTT client for Hearth Core.
//
// It wraps eclipse/paho.mqtt.golang with connection lifecycle management,
// Last Will and Testament for offline detection, automatic subscription
// restoration on reconnect, and topic builders for the Hearth hierarchy:
//
//	hearth/command/{device_type}/{device_id}   commands to device drivers
//	hearth/state/{device_type}/{device_id}     state updates from drivers
//	hearth/presence/{person_id}                presence events
//	hearth/mood                                current inferred mood
//	hearth/notify/{rule_id}                    user notifications from rules
//	hearth/system/status                       online/offline status (retained)
package mqtt
