// Package mqtt connects Boardflow Core to the MQTT broker that carries
// domain events between the API, the automation pipeline and notification
// consumers.
//
// The client wraps paho.mqtt.golang and adds:
//   - auto-reconnect with subscription restore
//   - a retained online/offline status with Last Will and Testament
//   - input validation on publish and subscribe (topic, QoS, 1MB payload cap)
//   - panic recovery around message handlers
//
// # Topics
//
// Every topic lives under a prefix (default "boardflow"):
//
//	boardflow/user/action/{event_type}    domain events
//	boardflow/notification/mention        mention notifications
//	boardflow/system/status               retained service status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.Transport.TopicPrefix)
//	err = client.Subscribe(topics.AllUserActions(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
