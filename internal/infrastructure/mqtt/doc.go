// Package mqtt connects Flora Core to an MQTT broker.
//
// MQTT is optional. When enabled it carries two flows:
//
//	devices  --flora/ingest/{id}-->   Flora Core
//	Flora Core --flora/command/{id}--> devices
//
// plus a retained presence message on flora/system/status/{client_id}, with
// a last will so the broker marks the client offline if it disappears
// without a clean shutdown.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllIngest(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        return handle(mqtt.LastSegment(topic), payload)
//	    })
//
// Subscriptions survive reconnects; handlers run on paho goroutines and have
// panics recovered.
package mqtt
